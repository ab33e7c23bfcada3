package malloc

import "sync"
import "sync/atomic"
import "testing"
import "unsafe"

func TestTinyFanout(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	if h.tinyclasses != 8 {
		t.Fatalf("expected 8 tiny classes, got %v", h.tinyclasses)
	}
	if len(h.tinyarenas) != 8 {
		t.Fatalf("expected 8 tiny arenas, got %v", len(h.tinyarenas))
	}

	// round robin advances the arena counter once per allocation
	// and spreads allocations over every arena.
	before := atomic.LoadUint64(&h.tinycounter)
	ptrs := make([]unsafe.Pointer, 64)
	for i := range ptrs {
		ptrs[i] = h.GetMem(64)
	}
	if after := atomic.LoadUint64(&h.tinycounter); after-before != 64 {
		t.Errorf("expected 64 counter steps, got %v", after-before)
	}
	for _, arena := range h.tinyarenas {
		bt := &arena[h.lookup[(64+blockHeaderSize-1)>>4]]
		if atomic.LoadUint64(&bt.ngets) != 8 {
			t.Errorf("expected 8 allocations per arena, got %v", bt.ngets)
		}
	}
	for _, ptr := range ptrs {
		if rc := h.FreeMem(ptr); rc != 0 {
			t.Errorf("freemem returned %v", rc)
		}
	}
}

func TestTinyBoost(t *testing.T) {
	setts := Defaultsettings()
	setts["tiny.classes.po2"] = int64(4)
	setts["tiny.arenas.po2"] = int64(5)
	h := NewHeap(setts)
	defer h.Release()

	if h.tinyclasses != 16 || len(h.tinyarenas) != 32 {
		t.Fatalf("boost dimensions: %v classes x %v arenas",
			h.tinyclasses, len(h.tinyarenas))
	}
	// 256 byte allocations now ride the fan-out.
	ptr := h.GetMem(240)
	if msize := h.MemSize(ptr); msize != 248 {
		t.Errorf("expected %v, got %v", 248, msize)
	}
	h.FreeMem(ptr)
}

func TestTinySinglethread(t *testing.T) {
	setts := Defaultsettings()
	setts["assume.multithread"] = false
	h := NewHeap(setts)
	defer h.Release()

	if len(h.tinyarenas) != 1 {
		t.Fatalf("expected a single arena, got %v", len(h.tinyarenas))
	}
	ptr := h.GetMem(16)
	if ptr == nil {
		t.Fatalf("unexpected nil")
	}
	h.FreeMem(ptr)
}

func TestTinyParallel(t *testing.T) {
	h := NewHeap(nil)
	defer h.Release()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func(seed byte) {
			defer wg.Done()
			var ptrs [128]unsafe.Pointer
			for round := 0; round < 1000; round++ {
				for i := range ptrs {
					ptrs[i] = h.GetMem(int64(16 + (int(seed)+i)%112))
					*(*byte)(ptrs[i]) = seed
				}
				for i := range ptrs {
					if *(*byte)(ptrs[i]) != seed {
						panic("payload corrupted across goroutines")
					}
					if rc := h.FreeMem(ptrs[i]); rc != 0 {
						panic("freemem failed")
					}
				}
			}
		}(byte(n))
	}
	wg.Wait()
	if status := h.CurrentHeapStatus(); status.SmallBlockCount != 0 {
		t.Errorf("expected no live blocks, got %v", status.SmallBlockCount)
	}
}
