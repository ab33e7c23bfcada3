package malloc

// 46 small block sizes, header included, chosen so that no class
// wastes more than a few percent internally. Classes advance by 16
// bytes while 16 bytes is a meaningful fraction of the size, then
// by progressively coarser steps.
var smallBlockSizes = [numSmallClasses]uint32{
	16, 32, 48, 64, 80, 96, 112, 128,
	144, 160, 176, 192, 208, 224, 240, 256,
	272, 288, 304, 320, 336, 352, 384, 416,
	448, 480, 528, 576, 624, 672, 736, 800,
	880, 960, 1056, 1152, 1264, 1376, 1504, 1648,
	1808, 1984, 2176, 2384, 2480, 2608,
}

const numSmallClasses = 46

// maxSmallBlockSize largest small class, header included. User
// requests up to maxSmallUserSize bytes are served from the small
// block manager, anything bigger routes to the medium manager.
const maxSmallBlockSize = 2608
const maxSmallUserSize = int64(maxSmallBlockSize - blockHeaderSize)

// small requests route to a class through a table indexed by
// 16-byte granules of the needed block size.
const lookupBucketCount = maxSmallBlockSize / 16

// buildlookup table entry i holds the smallest class whose block
// size can hold a needed block size of 16*(i+1) bytes.
func buildlookup(lookup *[lookupBucketCount]uint8) {
	class := 0
	for i := 0; i < lookupBucketCount; i++ {
		need := uint32((i + 1) * 16)
		for smallBlockSizes[class] < need {
			class++
		}
		lookup[i] = uint8(class)
	}
}

// initsmalltype fill in the static fields of a small block type:
// its pool dimensioning and the medium bin groups it is allowed to
// draw pools from, so that pools for tiny classes do not starve
// big medium requests.
func initsmalltype(t *smallBlockType, h *Heap, class int) {
	bs := smallBlockSizes[class]
	t.heap = h
	t.sizeclass = int32(class)
	t.blocksize = bs

	desired := uint64(bs) * 64
	if desired < 16*1024 {
		desired = 16 * 1024
	} else if desired > 64*1024 {
		desired = 64 * 1024
	}
	t.optpool = uint32(roundupmedium(desired + smallPoolHeaderSize + blockHeaderSize))
	t.minpool = uint32(roundupmedium(uint64(bs)*8 + smallPoolHeaderSize + blockHeaderSize))
	t.maxpool = t.optpool + uint32(minMediumBlockSize)

	reach := uint64(t.optpool) * 4
	if reach > maxMediumBlockSize {
		reach = maxMediumBlockSize
	}
	gmax := uint(binindex(reach)) >> 5
	t.groups = uint32(1)<<(gmax+1) - 1

	initnode(t.partialaddr())
}
