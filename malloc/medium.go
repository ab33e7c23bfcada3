package malloc

import "unsafe"

import "github.com/bnclabs/goheap/api"
import "github.com/bnclabs/goheap/lib"
import "github.com/bnclabs/goheap/sys"

// Medium blocks live inside fixed 1.25MB pools. A pool starts with
// a 56 byte header carrying its list node, followed by a contiguous
// run of variable sized blocks and a zero-size sentinel header in
// the pool's last word. Block sizes are multiples of 16, so with
// the pool page aligned every user pointer is 16-byte aligned.
//
// A free block carries its size in its own last word, just below the
// upper neighbor's header (the boundary tag), and its list node in
// its first two payload words.
// Blocks of at least minMediumBlockSize are kept on one of 1024
// bins; sub-minimum fragments stay unbinned and are only reachable
// through boundary tags when a neighbor frees.

func (h *Heap) medpooladdr() uintptr {
	return uintptr(unsafe.Pointer(&h.medpools))
}

func (h *Heap) binaddr(bin int) uintptr {
	return uintptr(unsafe.Pointer(&h.medbins[bin]))
}

func (h *Heap) medmicros() *uint64 {
	if h.debug {
		return &h.mediumstats.micros
	}
	return nil
}

// binindex bins hold blocks of one 256-byte granule, the last bin
// collects everything at and above its size.
func binindex(size uint64) int {
	i := int((size - minMediumBlockSize) / mediumGranularity)
	if i >= mediumBinCount {
		i = mediumBinCount - 1
	}
	return i
}

// medbinpush insert a free block at the head of its bin and mark
// the two-level bitmap.
func (h *Heap) medbinpush(hdr uintptr, size uint64) {
	i := binindex(size)
	linknode(h.binaddr(i), hdr+blockHeaderSize)
	g, b := i>>5, uint8(i&31)
	h.binmaps[g] = uint32(lib.Bit32(h.binmaps[g]).Setbit(b))
	h.groupmap = uint32(lib.Bit32(h.groupmap).Setbit(uint8(g)))
}

// medbinremove delink a binned free block, clearing bitmap bits as
// bins and groups drain.
func (h *Heap) medbinremove(hdr uintptr, size uint64) {
	unlinknode(hdr + blockHeaderSize)
	i := binindex(size)
	if emptynode(h.binaddr(i)) {
		g := i >> 5
		h.binmaps[g] = uint32(lib.Bit32(h.binmaps[g]).Clearbit(uint8(i & 31)))
		if h.binmaps[g] == 0 {
			h.groupmap = uint32(lib.Bit32(h.groupmap).Clearbit(uint8(g)))
		}
	}
}

// medmarkfree write the free block header, its boundary tag, flag
// the upper neighbor and bin the block when big enough.
func (h *Heap) medmarkfree(hdr uintptr, size uint64) {
	storeword(hdr, size|isMediumFlag|isFreeFlag)
	storeword(hdr+uintptr(size)-blockHeaderSize, size)
	upper := hdr + uintptr(size)
	storeword(upper, loadword(upper)|prevMediumFree)
	if size >= minMediumBlockSize {
		h.medbinpush(hdr, size)
	}
}

// medsearch best-fit-upward over the bin bitmaps, restricted to the
// allowed groups. Returns the delinked block, or 0 when no binned
// block can hold size bytes.
func (h *Heap) medsearch(size uint64, groups uint32) (uintptr, uint64) {
	i := binindex(size)
	g := i >> 5
	bin := -1
	if groups&(1<<uint(g)) != 0 {
		if m := lib.Bit32(h.binmaps[g]) & (^lib.Bit32(0) << uint(i&31)); m != 0 {
			bin = g<<5 + int(m.Findfirstset())
		}
	}
	if bin < 0 {
		gm := lib.Bit32(h.groupmap&groups) & (^lib.Bit32(0) << uint(g+1))
		if gm == 0 {
			return 0, 0
		}
		g2 := int(gm.Findfirstset())
		bin = g2<<5 + int(lib.Bit32(h.binmaps[g2]).Findfirstset())
	}

	binaddr := h.binaddr(bin)
	node := nodeat(binaddr).next
	if bin == mediumBinCount-1 {
		// the last bin mixes sizes, scan it for a fit.
		for node != binaddr && loadword(node-blockHeaderSize)&headerSizeMask < size {
			node = nodeat(node).next
		}
		if node == binaddr {
			return 0, 0
		}
	}
	hdr := node - blockHeaderSize
	asize := loadword(hdr) & headerSizeMask
	h.medbinremove(hdr, asize)
	return hdr, asize
}

// medgrant turn a delinked free block of asize bytes into a used
// block of size bytes, splitting off the excess when it is big
// enough to stand on its own.
func (h *Heap) medgrant(hdr uintptr, asize, size, flags uint64) uint64 {
	if asize-size >= minMediumBlockSize {
		h.medmarkfree(hdr+uintptr(size), asize-size)
		storeword(hdr, size|isMediumFlag|flags)
		return size
	}
	upper := hdr + uintptr(asize)
	storeword(upper, loadword(upper) & ^prevMediumFree)
	storeword(hdr, asize|isMediumFlag|flags)
	return asize
}

// newmediumpool free whatever is left of the current feed region,
// merging it with a free block right above it and binning it when
// big enough, then map a fresh pool and point the sequential feed
// at its high end. False on out-of-memory.
func (h *Heap) newmediumpool() bool {
	if h.seqfeedpool != 0 && h.seqfeedleft > 0 {
		hdr := h.seqfeednext - uintptr(h.seqfeedleft)
		storeword(hdr, h.seqfeedleft|isMediumFlag)
		h.medfree(hdr) // still the feed pool, so never released here
		h.seqfeedleft = 0
	}
	base := sys.AcquirePages(mediumPoolSize)
	if base == nil {
		return false
	}
	h.mediumstats.acquired(mediumPoolSize, h.debug)
	p := uintptr(base)
	linknode(h.medpooladdr(), p)
	storeword(p+uintptr(mediumPoolSize)-blockHeaderSize, isMediumFlag) // sentinel
	h.seqfeedpool = p
	h.seqfeednext = p + uintptr(mediumPoolSize) - blockHeaderSize
	h.seqfeedleft = mediumPoolCapacity
	return true
}

// medfeed carve a block off the sequential feed region, which grows
// downward from the pool's sentinel. 0 on out-of-memory.
func (h *Heap) medfeed(size, flags uint64) uintptr {
	if h.seqfeedleft < size {
		if h.newmediumpool() == false {
			return 0
		}
	}
	hdr := h.seqfeednext - uintptr(size)
	storeword(hdr, size|isMediumFlag|flags)
	h.seqfeednext = hdr
	h.seqfeedleft -= size
	return hdr
}

// mediumgetmem medium entry point for user allocations.
func (h *Heap) mediumgetmem(n int64) unsafe.Pointer {
	size := roundupmedium(uint64(n) + blockHeaderSize)
	h.medlock.lock(h.spinmedium, &h.mediumstats.sleeps, h.medmicros())
	hdr, asize := h.medsearch(size, ^uint32(0))
	if hdr != 0 {
		h.medgrant(hdr, asize, size, 0)
	} else {
		hdr = h.medfeed(size, 0)
	}
	h.medlock.unlock()
	if hdr == 0 {
		errorf("malloc.medium: %v for %v bytes\n", api.ErrorOutofMemory, n)
		return nil
	}
	return unsafe.Pointer(hdr + blockHeaderSize)
}

// medfree caller holds the medium lock. Coalesce with both
// neighbors through header flags and boundary tags; when the merged
// span covers the whole pool, hand the pool back to the OS unless
// the sequential feed still points into it.
func (h *Heap) medfree(hdr uintptr) {
	word := loadword(hdr)
	size := word & headerSizeMask

	upper := hdr + uintptr(size)
	uword := loadword(upper)
	if uword&isFreeFlag != 0 {
		usize := uword & headerSizeMask
		if usize >= minMediumBlockSize {
			h.medbinremove(upper, usize)
		}
		size += usize
	}
	if word&prevMediumFree != 0 {
		psize := loadword(hdr - blockHeaderSize)
		hdr -= uintptr(psize)
		if psize >= minMediumBlockSize {
			h.medbinremove(hdr, psize)
		}
		size += psize
	}

	if size == mediumPoolCapacity {
		base := hdr - mediumPoolHeaderSize
		if base != h.seqfeedpool {
			unlinknode(base)
			sys.ReleasePages(unsafe.Pointer(base), mediumPoolSize)
			h.mediumstats.released(mediumPoolSize, h.debug)
			return
		}
	}
	h.medmarkfree(hdr, size)
}

// carvepool allocate the backing medium block for a small block
// pool. Called with the owning class lock held; this is the only
// place two heap locks nest. Oversized bin hits are split back to
// the class's optimal pool size.
func (h *Heap) carvepool(t *smallBlockType) (uintptr, uint64) {
	minp, optp := uint64(t.minpool), uint64(t.optpool)
	h.medlock.lock(h.spinmedium, &h.mediumstats.sleeps, h.medmicros())
	defer h.medlock.unlock()

	hdr, asize := h.medsearch(minp, t.groups)
	if hdr != 0 {
		if asize > uint64(t.maxpool) {
			return hdr, h.medgrant(hdr, asize, optp, isLargeOrPoolFlag)
		}
		return hdr, h.medgrant(hdr, asize, asize, isLargeOrPoolFlag)
	}
	if h.seqfeedleft >= minp {
		size := optp
		if h.seqfeedleft < size {
			size = h.seqfeedleft
		}
		return h.medfeed(size, isLargeOrPoolFlag), size
	}
	if hdr = h.medfeed(optp, isLargeOrPoolFlag); hdr == 0 {
		return 0, 0
	}
	return hdr, optp
}

// mediumrealloc grow in place into a free upper neighbor when the
// two span enough, otherwise reallocate growing by at least a
// quarter. Shrinks stay in place, splitting the tail off, and only
// once the payload drops below half the block.
func (h *Heap) mediumrealloc(ptr unsafe.Pointer, hdr uintptr, n int64) unsafe.Pointer {
	cursize := loadword(hdr) & headerSizeMask
	avail := int64(cursize) - blockHeaderSize

	if n > avail {
		need := roundupmedium(uint64(n) + blockHeaderSize)
		if need <= maxMediumBlockSize {
			h.medlock.lock(h.spinmedium, &h.mediumstats.sleeps, h.medmicros())
			upper := hdr + uintptr(cursize)
			uword := loadword(upper)
			if uword&isFreeFlag != 0 && cursize+(uword&headerSizeMask) >= need {
				usize := uword & headerSizeMask
				if usize >= minMediumBlockSize {
					h.medbinremove(upper, usize)
				}
				own := loadword(hdr) & prevMediumFree
				h.medgrant(hdr, cursize+usize, need, own)
				h.medlock.unlock()
				return ptr
			}
			h.medlock.unlock()
		}
		target := avail + avail/4
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

	if n >= avail>>1 {
		return ptr
	}
	need := roundupmedium(uint64(n) + blockHeaderSize)
	h.medlock.lock(h.spinmedium, &h.mediumstats.sleeps, h.medmicros())
	if cursize-need >= minMediumBlockSize {
		own := loadword(hdr) & prevMediumFree
		storeword(hdr, need|isMediumFlag|own)
		tail := hdr + uintptr(need)
		storeword(tail, (cursize-need)|isMediumFlag)
		h.medfree(tail)
	}
	h.medlock.unlock()
	return ptr
}
