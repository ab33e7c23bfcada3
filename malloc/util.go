package malloc

import "fmt"
import "unsafe"
import "encoding/binary"

import "github.com/spaolacci/murmur3"

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}

func loadword(p uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(p))
}

func storeword(p uintptr, v uint64) {
	*(*uint64)(unsafe.Pointer(p)) = v
}

var zeroblk [1024]byte

// memzero clear n bytes starting at p.
func memzero(p uintptr, n int64) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n))
	for len(dst) >= len(zeroblk) {
		copy(dst, zeroblk[:])
		dst = dst[len(zeroblk):]
	}
	if len(dst) > 0 {
		copy(dst, zeroblk[:len(dst)])
	}
}

// memmove copy n bytes from src to dst, regions must not overlap
// except as produced by in-place shrinks where dst < src.
func memmove(dst, src uintptr, n int64) {
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(n))
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), int(n))
	copy(d, s)
}

// roundupmedium round a block size up to medium granularity, which
// is a multiple of 256 offset by 48.
func roundupmedium(size uint64) uint64 {
	if size <= minMediumBlockSize {
		return minMediumBlockSize
	}
	return ((size - mediumSizeOffset + mediumGranularity - 1) &
		^uint64(mediumGranularity-1)) + mediumSizeOffset
}

// rounduplarge round a mapping size up to the 64KB large block
// granularity.
func rounduplarge(size uint64) uint64 {
	return (size + largeBlockGranularity - 1) & ^(largeBlockGranularity - 1)
}

const poolSignatureSeed = uint32(0x9e3779b9)

// poolsignature stamp identifying a formatted small block pool,
// validated before trusting a header found at free time.
func poolsignature(base uintptr) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(base))
	return murmur3.Sum32WithSeed(buf[:], poolSignatureSeed)
}

//---- intrusive circular lists with an embedded sentinel.
//
// Nodes are identified by the address of their {prev, next} word
// pair. For a free medium block the node sits just above the block
// header, for pools and large blocks it is the first two words of
// the region, for sentinels it is a stable field of the owning
// struct whose address is never stored in the heap.

type listnode struct {
	prev uintptr
	next uintptr
}

func nodeat(p uintptr) *listnode {
	return (*listnode)(unsafe.Pointer(p))
}

func initnode(p uintptr) {
	n := nodeat(p)
	n.prev, n.next = p, p
}

// linknode insert p right after head.
func linknode(head, p uintptr) {
	hn, n := nodeat(head), nodeat(p)
	n.prev, n.next = head, hn.next
	nodeat(hn.next).prev = p
	hn.next = p
}

func unlinknode(p uintptr) {
	n := nodeat(p)
	nodeat(n.prev).next = n.next
	nodeat(n.next).prev = n.prev
}

func emptynode(p uintptr) bool {
	return nodeat(p).next == p
}
