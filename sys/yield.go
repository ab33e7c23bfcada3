package sys

import "runtime"
import "time"

var epoch = time.Now()

// Yield relinquish the CPU to another runnable thread. Called by
// spin-wait locks once their spin budget is exhausted.
func Yield() {
	runtime.Gosched()
}

// Microseconds monotonic clock with microsecond resolution, used
// only for debug sleep accounting.
func Microseconds() int64 {
	return int64(time.Since(epoch) / time.Microsecond)
}
