//go:build !linux
// +build !linux

package sys

import "unsafe"

// RemapSupported is true on platforms where RemapPages can grow or
// shrink a mapping in place.
const RemapSupported = false

// RemapPages is unsupported on this platform; callers fall back to
// acquire, copy and release.
func RemapPages(ptr unsafe.Pointer, oldsize, newsize int64) (unsafe.Pointer, bool) {
	return nil, false
}
