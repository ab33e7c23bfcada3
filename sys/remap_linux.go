//go:build linux
// +build linux

package sys

import "unsafe"

import "golang.org/x/sys/unix"

// RemapSupported is true on platforms where RemapPages can grow or
// shrink a mapping in place.
const RemapSupported = true

// RemapPages resize the region at ptr from oldsize to newsize. The
// region may move; the new address is returned. Newly mapped pages
// are zero initialized. Returns (nil, false) when the kernel cannot
// remap, in which case the original mapping is left untouched.
func RemapPages(ptr unsafe.Pointer, oldsize, newsize int64) (unsafe.Pointer, bool) {
	data := unsafe.Slice((*byte)(ptr), int(oldsize))
	newdata, err := unix.Mremap(data, int(newsize), unix.MREMAP_MAYMOVE)
	if err != nil {
		return nil, false
	}
	return unsafe.Pointer(&newdata[0]), true
}
