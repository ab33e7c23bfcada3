package malloc

import "sort"
import "sync/atomic"

import "github.com/cloudfoundry/gosigar"
import "github.com/dustin/go-humanize"

// arenastats per arena OS-interaction counters. current/total/sleep
// are maintained lock free on every path; peak, call counts and
// sleep time only under "debug.stats".
type arenastats struct {
	current uint64 // signed value, atomic add
	total   uint64
	sleeps  uint64
	peak    uint64
	nmaps   uint64
	nunmaps uint64
	micros  uint64
}

func (st *arenastats) acquired(n int64, debug bool) {
	cur := atomic.AddUint64(&st.current, uint64(n))
	atomic.AddUint64(&st.total, uint64(n))
	if debug {
		atomic.AddUint64(&st.nmaps, 1)
		if cur > atomic.LoadUint64(&st.peak) {
			// advisory, a lost race only under-reports the peak.
			atomic.StoreUint64(&st.peak, cur)
		}
	}
}

func (st *arenastats) released(n int64, debug bool) {
	atomic.AddUint64(&st.current, ^uint64(n-1))
	if debug {
		atomic.AddUint64(&st.nunmaps, 1)
	}
}

func (st *arenastats) status() ArenaStatus {
	return ArenaStatus{
		CurrentBytes:      int64(atomic.LoadUint64(&st.current)),
		TotalBytes:        atomic.LoadUint64(&st.total),
		SleepCount:        atomic.LoadUint64(&st.sleeps),
		PeakBytes:         atomic.LoadUint64(&st.peak),
		AcquireCalls:      atomic.LoadUint64(&st.nmaps),
		ReleaseCalls:      atomic.LoadUint64(&st.nunmaps),
		SleepMicroseconds: atomic.LoadUint64(&st.micros),
	}
}

// ArenaStatus snapshot of one arena's counters. The Peak, call
// count and sleep time fields stay zero unless the heap runs with
// "debug.stats".
type ArenaStatus struct {
	CurrentBytes      int64
	TotalBytes        uint64
	SleepCount        uint64
	PeakBytes         uint64
	AcquireCalls      uint64
	ReleaseCalls      uint64
	SleepMicroseconds uint64
}

// HeapStatus snapshot of every heap counter, obtained without
// stopping the allocator; numbers racing with live traffic can be
// mutually inconsistent by a few operations.
type HeapStatus struct {
	Medium ArenaStatus
	Large  ArenaStatus

	SleepCount          uint64 // every sleep, all locks
	SmallGetSleepCount  uint64
	SmallFreeSleepCount uint64

	SmallBlockCount int64 // live small blocks
	SmallBlockBytes int64 // live small bytes, class sizes
}

// CurrentHeapStatus snapshot all counters.
func (h *Heap) CurrentHeapStatus() HeapStatus {
	status := HeapStatus{
		Medium: h.mediumstats.status(),
		Large:  h.largestats.status(),
	}
	h.eachtype(func(t *smallBlockType) {
		gets := atomic.LoadUint64(&t.ngets)
		frees := atomic.LoadUint64(&t.nfrees)
		gsleeps := atomic.LoadUint64(&t.ngetsleeps)
		fsleeps := atomic.LoadUint64(&t.nfreesleeps)
		status.SmallGetSleepCount += gsleeps
		status.SmallFreeSleepCount += fsleeps
		status.SmallBlockCount += int64(gets) - int64(frees)
		status.SmallBlockBytes += (int64(gets) - int64(frees)) * int64(t.blocksize)
	})
	status.SleepCount = status.Medium.SleepCount + status.Large.SleepCount +
		status.SmallGetSleepCount + status.SmallFreeSleepCount
	return status
}

// StatusOrder sort column for SmallBlockStatus.
type StatusOrder int

const (
	// OrderByTotal sort by cumulative allocation count.
	OrderByTotal StatusOrder = iota
	// OrderByCurrent sort by live block count.
	OrderByCurrent
	// OrderBySize sort by class size.
	OrderBySize
)

// SmallBlockStat usage of one small size class, aggregated over the
// tiny arenas and the default arena.
type SmallBlockStat struct {
	TotalAllocs uint64
	CurrentLive uint64
	ClassSize   uint32
}

// SmallBlockStatus per-class usage for up to max classes with at
// least one allocation, sorted descending on the orderby column.
func (h *Heap) SmallBlockStatus(max int, orderby StatusOrder) []SmallBlockStat {
	stats := make([]SmallBlockStat, numSmallClasses)
	h.eachtype(func(t *smallBlockType) {
		st := &stats[t.sizeclass]
		st.ClassSize = t.blocksize
		gets := atomic.LoadUint64(&t.ngets)
		st.TotalAllocs += gets
		st.CurrentLive += gets - atomic.LoadUint64(&t.nfrees)
	})
	active := make([]SmallBlockStat, 0, numSmallClasses)
	for _, st := range stats {
		if st.TotalAllocs > 0 {
			active = append(active, st)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		switch orderby {
		case OrderByCurrent:
			return active[i].CurrentLive > active[j].CurrentLive
		case OrderBySize:
			return active[i].ClassSize > active[j].ClassSize
		}
		return active[i].TotalAllocs > active[j].TotalAllocs
	})
	if len(active) > max {
		active = active[:max]
	}
	return active
}

// ContentionStat sleeps charged to one size class in one direction,
// exactly one of GetClassSize and FreeClassSize is non-zero.
type ContentionStat struct {
	SleepCount    uint64
	GetClassSize  uint32
	FreeClassSize uint32
}

// SmallBlockContention the classes sleeping most, one record per
// (class, direction) pair with a non-zero sleep count, sorted
// descending, up to max records.
func (h *Heap) SmallBlockContention(max int) []ContentionStat {
	gets := make([]uint64, numSmallClasses)
	frees := make([]uint64, numSmallClasses)
	h.eachtype(func(t *smallBlockType) {
		gets[t.sizeclass] += atomic.LoadUint64(&t.ngetsleeps)
		frees[t.sizeclass] += atomic.LoadUint64(&t.nfreesleeps)
	})
	recs := make([]ContentionStat, 0, numSmallClasses)
	for class := 0; class < numSmallClasses; class++ {
		if gets[class] > 0 {
			recs = append(recs, ContentionStat{
				SleepCount: gets[class], GetClassSize: smallBlockSizes[class],
			})
		}
		if frees[class] > 0 {
			recs = append(recs, ContentionStat{
				SleepCount: frees[class], FreeClassSize: smallBlockSizes[class],
			})
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].SleepCount > recs[j].SleepCount
	})
	if len(recs) > max {
		recs = recs[:max]
	}
	return recs
}

// LogHeapStatus log a one-look summary of the heap and the system
// memory it is drawing from.
func (h *Heap) LogHeapStatus() {
	status := h.CurrentHeapStatus()
	mem := sigar.Mem{}
	mem.Get()
	infof(
		"malloc: small %v blocks %v, medium %v, large %v, sleeps %v\n",
		status.SmallBlockCount,
		humanize.Bytes(uint64(status.SmallBlockBytes)),
		humanize.Bytes(uint64(status.Medium.CurrentBytes)),
		humanize.Bytes(uint64(status.Large.CurrentBytes)),
		status.SleepCount)
	infof(
		"malloc: system total %v, used %v, free %v\n",
		humanize.Bytes(mem.Total), humanize.Bytes(mem.Used),
		humanize.Bytes(mem.Free))
	if h.debug {
		infof(
			"malloc: medium peak %v maps %v unmaps %v, large peak %v maps %v unmaps %v\n",
			humanize.Bytes(status.Medium.PeakBytes),
			status.Medium.AcquireCalls, status.Medium.ReleaseCalls,
			humanize.Bytes(status.Large.PeakBytes),
			status.Large.AcquireCalls, status.Large.ReleaseCalls)
	}
}
