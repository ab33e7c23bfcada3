// Package api define types and interfaces common to goheap
// allocators.
package api

import "unsafe"

// Mallocer interface for heap memory management.
type Mallocer interface {
	// GetMem allocate `n` bytes of memory. Allocated memory is
	// always 16-byte aligned. Returns nil for n <= 0 and on
	// out-of-memory.
	GetMem(n int64) unsafe.Pointer

	// AllocMem same as GetMem, with the payload zero filled.
	AllocMem(n int64) unsafe.Pointer

	// FreeMem free an allocated block. Returns 0 on success, -1 if
	// ptr does not refer to a live block. Freeing nil is a no-op
	// returning 0.
	FreeMem(ptr unsafe.Pointer) int

	// ReallocMem resize the block to `n` bytes preserving payload.
	// A nil ptr behaves as GetMem, n <= 0 behaves as FreeMem and
	// returns nil.
	ReallocMem(ptr unsafe.Pointer, n int64) unsafe.Pointer

	// MemSize return the usable payload capacity of the block.
	MemSize(ptr unsafe.Pointer) int64

	// Release the heap and all its pools back to the OS.
	Release()
}
