// Package malloc implements a general purpose heap allocator for
// long-running multi-threaded services, with a limited scope:
//
//  * Memory returned by this package is invisible to the Go garbage
//    collector, applications own the lifecycle of every block.
//  * Blocks are always 16-byte aligned and carry a one-word header
//    just below the user pointer.
//  * Tiny blocks (the first few size classes) fan out round-robin
//    over replicated arenas to keep lock contention low.
//  * Small blocks (up to 2.6KB) are served from fixed size-class
//    pools hosted inside medium blocks.
//  * Medium blocks (up to ~256KB) are carved from 1.25MB pools,
//    indexed by 1024 size bins and a two-level bitmap, coalesced
//    with boundary tags.
//  * Large blocks map whole page ranges from the OS and resize in
//    place where the platform supports remapping.
//
// A Heap is empty to begin with and maps pools from the OS as
// allocations come in. Medium pools are returned to the OS as soon
// as they drain completely, except the pool the sequential feed is
// carving from; everything else is returned on Release.
//
// Every entry point is safe for concurrent use. Shared structures
// are gated by spin-then-yield locks; contention is observable
// through sleep counters on the heap status.
package malloc
