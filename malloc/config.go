package malloc

import s "github.com/bnclabs/gosettings"

// Heap configurable parameters and default settings.
//
// "tiny.classes.po2" (int64, default: 3)
//		Log2 of the number of small size classes replicated for the
//		tiny fan-out, 3 covers sizes up to 128 bytes, 4 covers
//		sizes up to 256 bytes. 0 disables the fan-out.
//
// "tiny.arenas.po2" (int64, default: 3)
//		Log2 of the number of replicated tiny arenas. Raise to 4 or
//		5 on machines with many cores.
//
// "spin.factor" (int64, default: 1)
//		Multiplier applied to every spin budget before a contended
//		lock yields the CPU. Use 10 on microarchitectures with a
//		cheap pause.
//
// "remap.enable" (bool, default: true)
//		Resize large blocks with the OS remap primitive when the
//		platform has one, otherwise reallocate and copy.
//
// "report.leaks" (bool, default: false)
//		Log per size-class leak counts on Release and poison the
//		first payload word of freed blocks.
//
// "debug.stats" (bool, default: false)
//		Track peak bytes, acquire/release call counts and sleep
//		microseconds. Adds a small cost to every OS interaction.
//
// "assume.multithread" (bool, default: true)
//		When false the heap is promised a single allocating thread
//		and drops the tiny fan-out replication to a single arena.
func Defaultsettings() s.Settings {
	return s.Settings{
		"tiny.classes.po2":   int64(3),
		"tiny.arenas.po2":    int64(3),
		"spin.factor":        int64(1),
		"remap.enable":       true,
		"report.leaks":       false,
		"debug.stats":        false,
		"assume.multithread": true,
	}
}
