package malloc

import "unsafe"

import "github.com/bnclabs/goheap/api"
import "github.com/bnclabs/goheap/sys"

// largeBlockHeader occupies the first 64 bytes of a mapped large
// region. The {prev, next} pair is the node of the global large
// list, sizeflags sits in the last word so that it lands just below
// the user pointer like every other block header.
type largeBlockHeader struct {
	prev      uintptr
	next      uintptr
	usersize  uint64 // size the application asked for
	blocksize uint64 // size of the whole mapping
	_         [3]uint64
	sizeflags uint64
}

func largeat(p uintptr) *largeBlockHeader {
	return (*largeBlockHeader)(unsafe.Pointer(p))
}

func (h *Heap) largeaddr() uintptr {
	return uintptr(unsafe.Pointer(&h.largehead))
}

func (h *Heap) largemicros() *uint64 {
	if h.debug {
		return &h.largestats.micros
	}
	return nil
}

func (h *Heap) largegetmem(n int64) unsafe.Pointer {
	size := rounduplarge(uint64(n) + largeBlockHeaderSize + blockHeaderSize)
	base := sys.AcquirePages(int64(size))
	if base == nil {
		errorf("malloc.large: %v for %v bytes\n", api.ErrorOutofMemory, n)
		return nil
	}
	h.largestats.acquired(int64(size), h.debug)

	lb := largeat(uintptr(base))
	lb.usersize = uint64(n)
	lb.blocksize = size
	lb.sizeflags = size | isLargeOrPoolFlag

	h.largelock.lock(h.spinlarge, &h.largestats.sleeps, h.largemicros())
	linknode(h.largeaddr(), uintptr(base))
	h.largelock.unlock()
	return unsafe.Pointer(uintptr(base) + largeBlockHeaderSize)
}

func (h *Heap) largefree(ptr unsafe.Pointer) int {
	base := uintptr(ptr) - largeBlockHeaderSize
	lb := largeat(base)
	size := lb.blocksize

	h.largelock.lock(h.spinlarge, &h.largestats.sleeps, h.largemicros())
	unlinknode(base)
	h.largelock.unlock()

	sys.ReleasePages(unsafe.Pointer(base), int64(size))
	h.largestats.released(int64(size), h.debug)
	return 0
}

// largerealloc shrinks under half keep the mapping and only adjust
// the recorded user size; anything smaller moves to a right-sized
// block. Growth pads by a quarter (an eighth past 128MB) and remaps
// in place when the platform can.
func (h *Heap) largerealloc(ptr unsafe.Pointer, n int64) unsafe.Pointer {
	base := uintptr(ptr) - largeBlockHeaderSize
	lb := largeat(base)
	avail := int64(lb.blocksize) - largeBlockHeaderSize

	if n <= avail {
		if n >= avail>>1 {
			lb.usersize = uint64(n)
			return ptr
		}
		newptr := h.GetMem(n)
		if newptr == nil {
			return nil
		}
		memmove(uintptr(newptr), uintptr(ptr), n)
		h.FreeMem(ptr)
		return newptr
	}

	growth := avail >> 2
	if avail > 128*1024*1024 {
		growth = avail >> 3
	}
	target := avail + growth
	if n > target {
		target = n
	}

	if h.remapenable && sys.RemapSupported {
		newsize := rounduplarge(uint64(target) + largeBlockHeaderSize + blockHeaderSize)
		h.largelock.lock(h.spinlarge, &h.largestats.sleeps, h.largemicros())
		unlinknode(base)
		oldsize := lb.blocksize
		newbase, ok := sys.RemapPages(unsafe.Pointer(base), int64(oldsize), int64(newsize))
		if ok {
			h.largestats.acquired(int64(newsize)-int64(oldsize), h.debug)
			lb = largeat(uintptr(newbase))
			lb.usersize = uint64(n)
			lb.blocksize = newsize
			lb.sizeflags = newsize | isLargeOrPoolFlag
			linknode(h.largeaddr(), uintptr(newbase))
			h.largelock.unlock()
			return unsafe.Pointer(uintptr(newbase) + largeBlockHeaderSize)
		}
		linknode(h.largeaddr(), base)
		h.largelock.unlock()
	}

	oldn := int64(lb.usersize)
	newptr := h.largegetmem(target)
	if newptr == nil {
		return nil
	}
	newlb := largeat(uintptr(newptr) - largeBlockHeaderSize)
	newlb.usersize = uint64(n)
	if oldn > n {
		oldn = n
	}
	memmove(uintptr(newptr), uintptr(ptr), oldn)
	h.largefree(ptr)
	return newptr
}
