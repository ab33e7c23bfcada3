package malloc

import "sync"
import "unsafe"

import s "github.com/bnclabs/gosettings"
import "github.com/bnclabs/goheap/api"
import "github.com/bnclabs/goheap/sys"

// Heap a complete allocator instance: the 46 small block classes
// with their tiny fan-out replicas, the medium pool machinery and
// the large block list. Zero or one heap per process is the normal
// arrangement; the package level entry points use a lazily created
// default instance.
type Heap struct {
	mediumstats arenastats
	largestats  arenastats
	tinycounter uint64

	types      [numSmallClasses]smallBlockType
	tinyarenas [][]smallBlockType
	lookup     [lookupBucketCount]uint8

	medlock     spinlock
	medpools    listnode
	medbins     [mediumBinCount]listnode
	binmaps     [mediumBinGroups]uint32
	groupmap    uint32
	seqfeedpool uintptr
	seqfeednext uintptr
	seqfeedleft uint64

	largelock spinlock
	largehead listnode

	// configuration
	tinyclasses   int
	spinsmallget  int
	spinsmallfree int
	spinmedium    int
	spinlarge     int
	remapenable   bool
	reportleaks   bool
	debug         bool

	released bool
}

// NewHeap create a heap. Pass nil settings for Defaultsettings(),
// or a Settings map overriding some of them, refer config.go for
// the parameter list.
func NewHeap(setts s.Settings) *Heap {
	setts = Defaultsettings().Mixin(setts)

	h := &Heap{}
	factor := int(setts.Int64("spin.factor"))
	if factor < 1 {
		panicerr("spin.factor must be positive, got %v", factor)
	}
	h.spinsmallget = spinSmallGet * factor
	h.spinsmallfree = spinSmallFree * factor
	h.spinmedium = spinMedium * factor
	h.spinlarge = spinLarge * factor
	h.remapenable = setts.Bool("remap.enable")
	h.reportleaks = setts.Bool("report.leaks")
	h.debug = setts.Bool("debug.stats")

	classespo2 := setts.Int64("tiny.classes.po2")
	arenaspo2 := setts.Int64("tiny.arenas.po2")
	if classespo2 < 0 || classespo2 > 4 {
		panicerr("tiny.classes.po2 must be 0..4, got %v", classespo2)
	} else if arenaspo2 < 0 || arenaspo2 > 5 {
		panicerr("tiny.arenas.po2 must be 0..5, got %v", arenaspo2)
	}
	if setts.Bool("assume.multithread") == false {
		arenaspo2 = 0
	}

	buildlookup(&h.lookup)
	for class := 0; class < numSmallClasses; class++ {
		initsmalltype(&h.types[class], h, class)
	}
	if classespo2 > 0 {
		h.tinyclasses = 1 << uint(classespo2)
		h.tinyarenas = make([][]smallBlockType, 1<<uint(arenaspo2))
		for a := range h.tinyarenas {
			h.tinyarenas[a] = make([]smallBlockType, h.tinyclasses)
			for class := 0; class < h.tinyclasses; class++ {
				initsmalltype(&h.tinyarenas[a][class], h, class)
			}
		}
	}
	for bin := 0; bin < mediumBinCount; bin++ {
		initnode(h.binaddr(bin))
	}
	initnode(h.medpooladdr())
	initnode(h.largeaddr())

	infof("malloc: new heap, %v tiny classes x %v arenas, spin factor %v\n",
		h.tinyclasses, len(h.tinyarenas), factor)
	return h
}

// GetMem implement api.Mallocer{} interface.
func (h *Heap) GetMem(n int64) unsafe.Pointer {
	if n <= 0 {
		return nil
	} else if h.released {
		panicerr("heap released")
	}
	if n <= maxSmallUserSize {
		class := int(h.lookup[(n+blockHeaderSize-1)>>4])
		if class < h.tinyclasses {
			return h.tinygetmem(class)
		}
		return h.smallgetmem(&h.types[class])
	} else if n <= maxMediumUserSize {
		return h.mediumgetmem(n)
	}
	return h.largegetmem(n)
}

// AllocMem implement api.Mallocer{} interface. Large blocks skip
// the clear, their pages arrive zeroed from the OS.
func (h *Heap) AllocMem(n int64) unsafe.Pointer {
	ptr := h.GetMem(n)
	if ptr != nil && n <= maxMediumUserSize {
		memzero(uintptr(ptr), n)
	}
	return ptr
}

// FreeMem implement api.Mallocer{} interface. Returns -1 when the
// header does not describe a live block, the memory is then left
// untouched.
func (h *Heap) FreeMem(ptr unsafe.Pointer) int {
	if ptr == nil {
		return 0
	}
	hdr := uintptr(ptr) - blockHeaderSize
	word := loadword(hdr)
	if word&isFreeFlag != 0 {
		return -1
	}
	if word&isMediumFlag != 0 {
		if word&isLargeOrPoolFlag != 0 {
			return -1 // a pool's backing block, not a user block
		}
		if h.reportleaks {
			storeword(uintptr(ptr), 0)
		}
		h.medlock.lock(h.spinmedium, &h.mediumstats.sleeps, h.medmicros())
		h.medfree(hdr)
		h.medlock.unlock()
		return 0
	}
	if word&isLargeOrPoolFlag != 0 {
		return h.largefree(ptr)
	}
	if word == 0 || word&uint64(Alignment-1) != 0 {
		return -1
	}
	pool := poolat(uintptr(word))
	if pool.signature != poolsignature(uintptr(word)) {
		return -1
	}
	if h.reportleaks {
		storeword(uintptr(ptr), 0)
	}
	h.smallfree(pool, hdr)
	return 0
}

// ReallocMem implement api.Mallocer{} interface.
func (h *Heap) ReallocMem(ptr unsafe.Pointer, n int64) unsafe.Pointer {
	if ptr == nil {
		return h.GetMem(n)
	} else if n <= 0 {
		h.FreeMem(ptr)
		return nil
	}
	hdr := uintptr(ptr) - blockHeaderSize
	word := loadword(hdr)
	switch {
	case word&isFreeFlag != 0:
		return nil
	case word&isMediumFlag != 0:
		if word&isLargeOrPoolFlag != 0 {
			return nil
		}
		return h.mediumrealloc(ptr, hdr, n)
	case word&isLargeOrPoolFlag != 0:
		return h.largerealloc(ptr, n)
	}
	return h.smallrealloc(ptr, poolat(uintptr(word)), n)
}

// MemSize implement api.Mallocer{} interface. Returns the payload
// capacity of the block, which is at least what was asked for.
func (h *Heap) MemSize(ptr unsafe.Pointer) int64 {
	if ptr == nil {
		return 0
	}
	word := loadword(uintptr(ptr) - blockHeaderSize)
	switch {
	case word&isFreeFlag != 0:
		return 0
	case word&isMediumFlag != 0:
		return int64(word&headerSizeMask) - blockHeaderSize
	case word&isLargeOrPoolFlag != 0:
		lb := largeat(uintptr(ptr) - largeBlockHeaderSize)
		return int64(lb.blocksize) - largeBlockHeaderSize
	}
	return int64(poolat(uintptr(word)).owner.blocksize) - blockHeaderSize
}

// Release implement api.Mallocer{} interface. Returns every mapped
// region to the OS; with "report.leaks" set, logs what the
// application never freed.
func (h *Heap) Release() {
	if h.released {
		return
	}
	h.released = true
	if h.reportleaks {
		h.logleaks()
	}
	for !emptynode(h.largeaddr()) {
		base := nodeat(h.largeaddr()).next
		size := largeat(base).blocksize
		unlinknode(base)
		sys.ReleasePages(unsafe.Pointer(base), int64(size))
		h.largestats.released(int64(size), h.debug)
	}
	for !emptynode(h.medpooladdr()) {
		base := nodeat(h.medpooladdr()).next
		unlinknode(base)
		sys.ReleasePages(unsafe.Pointer(base), mediumPoolSize)
		h.mediumstats.released(mediumPoolSize, h.debug)
	}
	h.seqfeedpool, h.seqfeednext, h.seqfeedleft = 0, 0, 0
	infof("malloc: heap released\n")
}

func (h *Heap) logleaks() {
	leaks := h.SmallBlockStatus(numSmallClasses, OrderBySize)
	for _, st := range leaks {
		if st.CurrentLive > 0 {
			errorf("malloc: leaked %v blocks of class %v\n",
				st.CurrentLive, st.ClassSize)
		}
	}
	status := h.CurrentHeapStatus()
	if n := status.Medium.CurrentBytes; n > int64(mediumPoolSize) {
		errorf("malloc: %v bytes held in medium pools\n", n)
	}
	if n := status.Large.CurrentBytes; n > 0 {
		errorf("malloc: %v bytes held in large blocks\n", n)
	}
}

// eachtype visit every small block type, the default arena first,
// then the tiny replicas.
func (h *Heap) eachtype(callb func(*smallBlockType)) {
	for class := 0; class < numSmallClasses; class++ {
		callb(&h.types[class])
	}
	for _, arena := range h.tinyarenas {
		for class := range arena {
			callb(&arena[class])
		}
	}
}

//---- package level API over a lazily created default heap.

var defaultonce sync.Once
var defaultheap *Heap

// Default the process-wide heap, created with Defaultsettings() on
// first use.
func Default() *Heap {
	defaultonce.Do(func() {
		defaultheap = NewHeap(nil)
	})
	return defaultheap
}

// GetMem allocate from the default heap.
func GetMem(n int64) unsafe.Pointer {
	return Default().GetMem(n)
}

// AllocMem allocate zeroed memory from the default heap.
func AllocMem(n int64) unsafe.Pointer {
	return Default().AllocMem(n)
}

// FreeMem free a block back to the default heap.
func FreeMem(ptr unsafe.Pointer) int {
	return Default().FreeMem(ptr)
}

// ReallocMem resize a block of the default heap.
func ReallocMem(ptr unsafe.Pointer, n int64) unsafe.Pointer {
	return Default().ReallocMem(ptr, n)
}

// MemSize payload capacity of a default heap block.
func MemSize(ptr unsafe.Pointer) int64 {
	return Default().MemSize(ptr)
}

// CurrentHeapStatus counters of the default heap.
func CurrentHeapStatus() HeapStatus {
	return Default().CurrentHeapStatus()
}

var _ api.Mallocer = (*Heap)(nil)
