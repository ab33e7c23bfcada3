package malloc

import "sync/atomic"

import "github.com/bnclabs/goheap/sys"

// spinlock is a one-word test-and-set lock with a bounded spin and
// a cooperative fallback. Contention past the spin budget shows up
// on the supplied sleep counter and never blocks the OS thread
// beyond a yield.
type spinlock struct {
	word uint32
}

func (sl *spinlock) trylock() bool {
	return atomic.CompareAndSwapUint32(&sl.word, 0, 1)
}

// spin try to acquire, reading the lock word with a plain atomic load
// between compare-exchange attempts, for at most spins iterations.
func (sl *spinlock) spin(spins int) bool {
	if sl.trylock() {
		return true
	}
	for i := 0; i < spins; i++ {
		if atomic.LoadUint32(&sl.word) == 0 && sl.trylock() {
			return true
		}
	}
	return false
}

// lock acquire, spinning then yielding until the lock is ours.
// Every yield increments sleeps; micros, when non-nil, accumulates
// the time spent yielding.
func (sl *spinlock) lock(spins int, sleeps *uint64, micros *uint64) {
	for {
		if sl.spin(spins) {
			return
		}
		atomic.AddUint64(sleeps, 1)
		if micros == nil {
			sys.Yield()
		} else {
			since := sys.Microseconds()
			sys.Yield()
			atomic.AddUint64(micros, uint64(sys.Microseconds()-since))
		}
	}
}

func (sl *spinlock) unlock() {
	atomic.StoreUint32(&sl.word, 0)
}
