package malloc

import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/goheap/sys"

// smallBlockType one small size class. The partial field is the
// embedded sentinel of the class's circular list of partially free
// pools. Sequential feed state points into the pool most recently
// carved for this class, which is filled linearly whenever the
// partial list has no free slot to offer.
type smallBlockType struct {
	lock      spinlock
	sizeclass int32
	blocksize uint32

	minpool uint32 // smallest acceptable pool block
	optpool uint32 // preferred pool block
	maxpool uint32 // split pools bigger than this to optpool
	groups  uint32 // allowed medium bin groups

	partial listnode

	seqpool  uintptr // base of the current sequential feed pool
	nextfeed uintptr // next unformatted slot
	maxfeed  uintptr // feed limit

	ngets       uint64
	nfrees      uint64
	ngetsleeps  uint64
	nfreesleeps uint64
	ngetmicros  uint64
	nfreemicros uint64

	heap *Heap
}

func (t *smallBlockType) partialaddr() uintptr {
	return uintptr(unsafe.Pointer(&t.partial))
}

// smallBlockPool header of a pool of equal sized slots, laid out at
// the payload start of its backing medium block. The {prev, next}
// pair doubles as the node of the owning class's partial list; a
// pool is linked there exactly when firstfree is non-zero.
type smallBlockPool struct {
	prev      uintptr
	next      uintptr
	owner     *smallBlockType
	firstfree uintptr // header address of first free slot, 0 if none
	medhdr    uintptr // header of the backing medium block
	inuse     uint32
	capacity  uint32
	signature uint32
	_         uint32
}

const smallPoolHeaderSize = 56

func poolat(p uintptr) *smallBlockPool {
	return (*smallBlockPool)(unsafe.Pointer(p))
}

func poolbase(pool *smallBlockPool) uintptr {
	return uintptr(unsafe.Pointer(pool))
}

// smallgetmem allocate from the class, blocking on its lock. On a
// contended lock the two next classes up are probed before every
// yield, a slightly bigger block beats sleeping for the right one.
func (h *Heap) smallgetmem(t *smallBlockType) unsafe.Pointer {
	if t.lock.spin(h.spinsmallget) == false {
		t = h.smallcontended(t)
	}
	ptr := h.smallalloc(t)
	t.lock.unlock()
	return ptr
}

func (h *Heap) smallcontended(t *smallBlockType) *smallBlockType {
	for {
		for up := t.sizeclass + 1; up <= t.sizeclass+2; up++ {
			if up >= numSmallClasses {
				break
			}
			t2 := &h.types[up]
			if t2.lock.trylock() {
				return t2
			}
		}
		atomic.AddUint64(&t.ngetsleeps, 1)
		if h.debug {
			since := sys.Microseconds()
			sys.Yield()
			atomic.AddUint64(&t.ngetmicros, uint64(sys.Microseconds()-since))
		} else {
			sys.Yield()
		}
		if t.lock.spin(h.spinsmallget) {
			return t
		}
	}
}

// smallalloc caller holds the class lock. Order of preference: the
// free list of the first partially free pool, then the sequential
// feed region of the current pool, then a fresh pool carved from
// the medium manager.
func (h *Heap) smallalloc(t *smallBlockType) unsafe.Pointer {
	var slot uintptr

	if emptynode(t.partialaddr()) == false {
		pool := poolat(nodeat(t.partialaddr()).next)
		slot = pool.firstfree
		pool.firstfree = uintptr(loadword(slot)) & ^uintptr(isFreeFlag)
		if pool.firstfree == 0 {
			unlinknode(poolbase(pool))
		}
		pool.inuse++
		storeword(slot, uint64(poolbase(pool)))

	} else if t.nextfeed < t.maxfeed {
		slot = t.nextfeed
		t.nextfeed += uintptr(t.blocksize)
		pool := poolat(t.seqpool)
		pool.inuse++
		storeword(slot, uint64(t.seqpool))

	} else {
		hdr, size := h.carvepool(t)
		if hdr == 0 {
			return nil
		}
		base := hdr + blockHeaderSize
		pool := poolat(base)
		pool.prev, pool.next = 0, 0
		pool.owner = t
		pool.firstfree = 0
		pool.medhdr = hdr
		pool.capacity = (uint32(size) - blockHeaderSize - smallPoolHeaderSize) /
			t.blocksize
		pool.inuse = 1
		pool.signature = poolsignature(base)
		t.seqpool = base
		slot = base + smallPoolHeaderSize
		t.nextfeed = slot + uintptr(t.blocksize)
		t.maxfeed = base + smallPoolHeaderSize +
			uintptr(pool.capacity)*uintptr(t.blocksize)
		storeword(slot, uint64(base))
	}
	atomic.AddUint64(&t.ngets, 1)
	return unsafe.Pointer(slot + blockHeaderSize)
}

// smallfree release one slot back to its pool. A drained pool goes
// back to the medium manager, unless it is the class's sequential
// feed pool, releasing that one would thrash the feed.
func (h *Heap) smallfree(pool *smallBlockPool, slot uintptr) {
	t := pool.owner
	var micros *uint64
	if h.debug {
		micros = &t.nfreemicros
	}
	t.lock.lock(h.spinsmallfree, &t.nfreesleeps, micros)
	atomic.AddUint64(&t.nfrees, 1)
	pool.inuse--

	if pool.inuse == 0 && poolbase(pool) != t.seqpool {
		if pool.firstfree != 0 {
			unlinknode(poolbase(pool))
		}
		hdr := pool.medhdr
		h.medlock.lock(h.spinmedium, &h.mediumstats.sleeps, h.medmicros())
		h.medfree(hdr)
		h.medlock.unlock()
	} else {
		if pool.firstfree == 0 {
			linknode(t.partialaddr(), poolbase(pool))
		}
		storeword(slot, uint64(pool.firstfree)|isFreeFlag)
		pool.firstfree = slot
	}
	t.lock.unlock()
}

// smallrealloc small blocks grow to at least double plus change, a
// growing buffer that lands here once will land here again. Shrinks
// keep the block unless the payload drops below a quarter of it.
func (h *Heap) smallrealloc(ptr unsafe.Pointer, pool *smallBlockPool, n int64) unsafe.Pointer {
	avail := int64(pool.owner.blocksize) - blockHeaderSize
	if n > avail {
		target := avail*2 + 32
		if n > target {
			target = n
		}
		newptr := h.GetMem(target)
		if newptr == nil {
			return nil
		}
		memmove(uintptr(newptr), uintptr(ptr), avail)
		h.FreeMem(ptr)
		return newptr
	}
	if n >= avail>>2 {
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
