package api

import "errors"

// ErrorOutofMemory page provider failed to map a new region.
var ErrorOutofMemory = errors.New("goheap.outofmemory")

// ErrorInvalidFree pointer passed to FreeMem does not refer to a
// live block, either stale or already freed.
var ErrorInvalidFree = errors.New("goheap.invalidfree")
