//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

package sys

import "unsafe"

import "golang.org/x/sys/unix"

// AcquirePages map a zero-initialized, read-write, page-aligned
// anonymous region of size bytes. Returns nil when the OS refuses.
func AcquirePages(size int64) unsafe.Pointer {
	data, err := unix.Mmap(
		-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(&data[0])
}

// ReleasePages unmap a region previously returned by AcquirePages.
// Size must be the same size the region was acquired with.
func ReleasePages(ptr unsafe.Pointer, size int64) {
	data := unsafe.Slice((*byte)(ptr), int(size))
	unix.Munmap(data)
}
