package malloc

import "testing"
import "unsafe"

func TestSmallChurn(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	// a million 32 byte buffers, freed in reverse order. With the
	// 8 byte header these land on the 48 byte class.
	count := 1000000
	ptrs := make([]unsafe.Pointer, count)
	for i := 0; i < count; i++ {
		ptrs[i] = h.GetMem(32)
		if ptrs[i] == nil {
			t.Fatalf("unexpected out-of-memory at %v", i)
		}
	}
	status := h.CurrentHeapStatus()
	if status.SmallBlockCount != int64(count) {
		t.Fatalf("expected %v live blocks, got %v", count, status.SmallBlockCount)
	}
	if status.SmallBlockBytes != int64(count)*48 {
		t.Fatalf("expected %v live bytes, got %v",
			int64(count)*48, status.SmallBlockBytes)
	}

	for i := count - 1; i >= 0; i-- {
		if rc := h.FreeMem(ptrs[i]); rc != 0 {
			t.Fatalf("freemem %v returned %v", i, rc)
		}
	}

	status = h.CurrentHeapStatus()
	if status.SmallBlockCount != 0 {
		t.Errorf("expected no live blocks, got %v", status.SmallBlockCount)
	}
	if status.SmallBlockBytes != 0 {
		t.Errorf("expected no live bytes, got %v", status.SmallBlockBytes)
	}
	stats := h.SmallBlockStatus(1, OrderByTotal)
	if len(stats) != 1 {
		t.Fatalf("expected one record, got %v", len(stats))
	}
	if stats[0].TotalAllocs != uint64(count) {
		t.Errorf("expected %v allocs, got %v", count, stats[0].TotalAllocs)
	}
	if stats[0].CurrentLive != 0 {
		t.Errorf("expected no live blocks, got %v", stats[0].CurrentLive)
	}
	if stats[0].ClassSize != 48 {
		t.Errorf("expected class 48, got %v", stats[0].ClassSize)
	}
	// every emptied pool went back to the medium manager, only
	// sequential feed pools are retained.
	if n := status.Medium.CurrentBytes; n > 2*mediumPoolSize {
		t.Errorf("%v bytes still held in medium pools", n)
	}
	checkmedium(t, h)
}

func TestSmallPoolReclaim(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	// drive one class through several pools, free everything and
	// make sure pool bookkeeping survives interleaved reuse.
	size := int64(2000) // class 2176, above the tiny fan-out
	ptrs := make([]unsafe.Pointer, 0, 2000)
	for i := 0; i < 2000; i++ {
		ptrs = append(ptrs, h.GetMem(size))
	}
	for i := 0; i < 2000; i += 2 {
		h.FreeMem(ptrs[i])
	}
	for i := 0; i < 500; i++ {
		ptrs[i*2] = h.GetMem(size)
	}
	for i, ptr := range ptrs {
		if i%2 == 0 && i >= 1000 {
			continue // freed and not reallocated
		}
		if rc := h.FreeMem(ptr); rc != 0 {
			t.Fatalf("freemem %v returned %v", i, rc)
		}
	}
	if status := h.CurrentHeapStatus(); status.SmallBlockCount != 0 {
		t.Errorf("expected no live blocks, got %v", status.SmallBlockCount)
	}
	checkmedium(t, h)
}

func TestSmallFreelist(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	// free some slots of a pool and expect them back, most recently
	// freed first.
	size := int64(500) // class 528
	var keep [10]unsafe.Pointer
	for i := range keep {
		keep[i] = h.GetMem(size)
	}
	h.FreeMem(keep[3])
	h.FreeMem(keep[7])
	p1 := h.GetMem(size)
	p2 := h.GetMem(size)
	if p1 != keep[7] || p2 != keep[3] {
		t.Errorf("free list not LIFO: %x %x", uintptr(p1), uintptr(p2))
	}
	for i := range keep {
		h.FreeMem(keep[i])
	}
}

func TestSmallReallocGrowth(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	// a small upsize at least doubles, a repeatedly grown buffer
	// skips classes instead of crawling them.
	ptr := h.GetMem(100)
	msize := h.MemSize(ptr)
	ptr = h.ReallocMem(ptr, msize+1)
	if got := h.MemSize(ptr); got < 2*msize+32 {
		t.Errorf("expected at least %v, got %v", 2*msize+32, got)
	}
	h.FreeMem(ptr)
}
