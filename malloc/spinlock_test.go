package malloc

import "sync"
import "testing"

func TestSpinlock(t *testing.T) {
	var sl spinlock
	var sleeps uint64

	if sl.trylock() == false {
		t.Fatalf("expected to acquire")
	}
	if sl.trylock() == true {
		t.Fatalf("expected to fail")
	}
	if sl.spin(10) == true {
		t.Fatalf("expected spin to exhaust")
	}
	sl.unlock()
	sl.lock(10, &sleeps, nil)
	sl.unlock()
	if sleeps != 0 {
		t.Errorf("expected no sleeps on uncontended lock, got %v", sleeps)
	}
}

func TestSpinlockContended(t *testing.T) {
	var sl spinlock
	var sleeps uint64
	var wg sync.WaitGroup

	count := 0
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10000; i++ {
				sl.lock(2, &sleeps, nil)
				count++
				sl.unlock()
			}
		}()
	}
	wg.Wait()
	if count != 8*10000 {
		t.Errorf("expected %v, got %v", 8*10000, count)
	}
}
