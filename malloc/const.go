package malloc

// Every user pointer is preceded by a one-word header. For a used
// small block the header holds the address of the containing pool,
// for a medium or large block it holds size-and-flags. The low bits
// of the word are flag bits.
const (
	isFreeFlag        = uint64(0x1) // block is on a free list
	isMediumFlag      = uint64(0x2) // block lives inside a medium pool
	isLargeOrPoolFlag = uint64(0x4) // large block, or small pool when isMediumFlag is set
	prevMediumFree    = uint64(0x8) // lower medium neighbor is free
	headerFlagsMask   = uint64(0xf)
	headerSizeMask    = ^headerFlagsMask
)

const blockHeaderSize = 8

// Alignment every pointer returned by the heap is aligned to this.
const Alignment = 16

// medium block geometry. Pools are fixed size regions carved into
// variable sized blocks terminated by a zero-size sentinel header.
const (
	mediumPoolSize       = int64(20 * 64 * 1024) // 1,310,720
	mediumPoolHeaderSize = 56
	mediumPoolCapacity   = uint64(mediumPoolSize) - mediumPoolHeaderSize - blockHeaderSize

	mediumGranularity  = 256
	mediumSizeOffset   = 48
	minMediumBlockSize = uint64(11*mediumGranularity + mediumSizeOffset) // 2,864

	mediumBinCount  = 1024
	mediumBinGroups = 32

	maxMediumBlockSize = minMediumBlockSize +
		(mediumBinCount-1)*mediumGranularity // 264,752
	maxMediumUserSize = int64(maxMediumBlockSize) - blockHeaderSize
)

// large block geometry. Requests above the medium range map whole
// 64KB-rounded regions from the page provider.
const (
	largeBlockHeaderSize  = 64
	largeBlockGranularity = uint64(64 * 1024)
)

// spin budgets, before the lock falls back to yielding. Tuned per
// lock class and scaled by the "spin.factor" setting. The small
// free path is empirically more contended, yielding sooner there
// is cheaper than burning the pause budget.
const (
	spinSmallGet  = 10
	spinSmallFree = 2
	spinMedium    = 500
	spinLarge     = 500
)
