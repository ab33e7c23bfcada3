package malloc

import "sync/atomic"
import "unsafe"

// The tiny front-end replicates the first few size classes over a
// set of arenas. One atomic increment spreads allocations across
// them; each arena is then probed with a non-blocking try so a busy
// arena is skipped instead of waited on. Only the fully walked
// worst case falls back to the default arena's blocking path.
func (h *Heap) tinygetmem(class int) unsafe.Pointer {
	arenas := h.tinyarenas
	mask := uint64(len(arenas) - 1)
	start := int(atomic.AddUint64(&h.tinycounter, 1) & mask)
	for k := 0; k < len(arenas); k++ {
		t := &arenas[(start+k)&int(mask)][class]
		if t.lock.trylock() {
			ptr := h.smallalloc(t)
			t.lock.unlock()
			if ptr != nil {
				return ptr
			}
		}
	}
	return h.smallgetmem(&h.types[class])
}
