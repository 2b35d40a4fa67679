package diskio

import "encoding/binary"

// bitmapHeaderSize holds the "next free" hint (uint32) ahead of the bit array.
const bitmapHeaderSize = 4

// BitsPerBitmapPage is the number of data pages one extent's bitmap page can
// track: the whole page minus its header, eight bits per byte.
const BitsPerBitmapPage = (PageSize - bitmapHeaderSize) * 8

// BitmapPage is a fixed-size allocation bitmap for one extent. Bit i is set
// iff data page i of that extent is in use; NextFree is a hint to the lowest
// free bit, not a correctness invariant (Allocate re-scans on miss).
type BitmapPage struct {
	data []byte // PageSize bytes, shared with the buffer pool frame
}

// NewBitmapPage wraps a page-sized buffer as a bitmap page view. It does not
// clear the buffer; callers creating a fresh extent should zero it first.
func NewBitmapPage(buf []byte) *BitmapPage {
	if len(buf) != PageSize {
		panic("diskio: bitmap page buffer must be exactly PageSize")
	}
	return &BitmapPage{data: buf}
}

func (b *BitmapPage) nextFree() uint32 {
	return binary.LittleEndian.Uint32(b.data[0:4])
}

func (b *BitmapPage) setNextFree(i uint32) {
	binary.LittleEndian.PutUint32(b.data[0:4], i)
}

func (b *BitmapPage) bitOffset(i uint32) (byteIdx int, mask byte) {
	byteIdx = bitmapHeaderSize + int(i/8)
	mask = 1 << (i % 8)
	return
}

// IsFree reports the bitmap state without mutating anything.
func (b *BitmapPage) IsFree(i uint32) bool {
	if i >= BitsPerBitmapPage {
		return false
	}
	byteIdx, mask := b.bitOffset(i)
	return b.data[byteIdx]&mask == 0
}

// Allocate finds the lowest free bit starting at the hint, sets it, and
// advances the hint. Returns (0, false) when the extent is full.
func (b *BitmapPage) Allocate() (uint32, bool) {
	start := b.nextFree()
	for i := start; i < BitsPerBitmapPage; i++ {
		if b.IsFree(i) {
			byteIdx, mask := b.bitOffset(i)
			b.data[byteIdx] |= mask
			b.setNextFree(b.scanForNextFree(i + 1))
			return i, true
		}
	}
	// The hint may be stale; do a full scan before declaring the extent full.
	for i := uint32(0); i < start; i++ {
		if b.IsFree(i) {
			byteIdx, mask := b.bitOffset(i)
			b.data[byteIdx] |= mask
			b.setNextFree(b.scanForNextFree(i + 1))
			return i, true
		}
	}
	return 0, false
}

// Deallocate clears bit i. Returns false if it was already free. If i is
// below the current hint, the hint is lowered to i.
func (b *BitmapPage) Deallocate(i uint32) bool {
	if i >= BitsPerBitmapPage {
		return false
	}
	if b.IsFree(i) {
		return false
	}
	byteIdx, mask := b.bitOffset(i)
	b.data[byteIdx] &^= mask
	if i < b.nextFree() {
		b.setNextFree(i)
	}
	return true
}

// scanForNextFree finds the next candidate hint at or after from, wrapping
// to BitsPerBitmapPage (i.e. "no known free bit") if none is found.
func (b *BitmapPage) scanForNextFree(from uint32) uint32 {
	for i := from; i < BitsPerBitmapPage; i++ {
		if b.IsFree(i) {
			return i
		}
	}
	return BitsPerBitmapPage
}

// Full reports whether every bit in the extent is in use.
func (b *BitmapPage) Full() bool {
	return b.nextFree() >= BitsPerBitmapPage
}
