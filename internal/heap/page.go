// Package heap implements the table heap: a linked list of slotted pages
// holding a table's tuples, with forward iteration in page-then-slot
// order.
package heap

import (
	"encoding/binary"

	"github.com/nainya/treestore/internal/diskio"
)

// Slotted page layout:
//
//	[0:4]   next page id (int32, diskio.InvalidPageID if none)
//	[4:8]   tuple count (slot directory length)
//	[8:12]  free space pointer (byte offset from page start where tuple
//	        data begins; data grows downward from the end of the page)
//	[12:]   slot directory, slotSize bytes per entry:
//	          offset(4) size(4) deleted(1)
const (
	headerSize = 12
	slotSize   = 9
)

// slottedPage is a thin view over one buffer-pool frame's bytes.
type slottedPage struct {
	data []byte
}

func newSlottedPage(data []byte) *slottedPage { return &slottedPage{data: data} }

// initEmpty formats a freshly allocated page: no tuples, free space
// pointer at the end of the page, no next page.
func (p *slottedPage) initEmpty() {
	p.setNextPageID(diskio.InvalidPageID)
	p.setTupleCount(0)
	p.setFreeSpacePointer(uint32(len(p.data)))
}

func (p *slottedPage) NextPageID() diskio.PageID {
	return diskio.PageID(int32(binary.LittleEndian.Uint32(p.data[0:4])))
}

func (p *slottedPage) setNextPageID(id diskio.PageID) {
	binary.LittleEndian.PutUint32(p.data[0:4], uint32(int32(id)))
}

func (p *slottedPage) TupleCount() uint32 {
	return binary.LittleEndian.Uint32(p.data[4:8])
}

func (p *slottedPage) setTupleCount(n uint32) {
	binary.LittleEndian.PutUint32(p.data[4:8], n)
}

func (p *slottedPage) freeSpacePointer() uint32 {
	return binary.LittleEndian.Uint32(p.data[8:12])
}

func (p *slottedPage) setFreeSpacePointer(off uint32) {
	binary.LittleEndian.PutUint32(p.data[8:12], off)
}

func (p *slottedPage) slotOffset(slot uint32) int { return headerSize + int(slot)*slotSize }

func (p *slottedPage) slotEntry(slot uint32) (offset, size uint32, deleted bool) {
	o := p.slotOffset(slot)
	offset = binary.LittleEndian.Uint32(p.data[o : o+4])
	size = binary.LittleEndian.Uint32(p.data[o+4 : o+8])
	deleted = p.data[o+8] != 0
	return
}

func (p *slottedPage) setSlotEntry(slot uint32, offset, size uint32, deleted bool) {
	o := p.slotOffset(slot)
	binary.LittleEndian.PutUint32(p.data[o:o+4], offset)
	binary.LittleEndian.PutUint32(p.data[o+4:o+8], size)
	if deleted {
		p.data[o+8] = 1
	} else {
		p.data[o+8] = 0
	}
}

// freeBytes returns the space available for a new slot plus its payload.
func (p *slottedPage) freeBytes() int {
	used := headerSize + int(p.TupleCount())*slotSize
	return int(p.freeSpacePointer()) - used
}

// Insert appends tuple into free space and returns its new slot number.
// Returns ok=false if it would not fit.
func (p *slottedPage) Insert(tuple []byte) (slot uint32, ok bool) {
	if p.freeBytes() < len(tuple)+slotSize {
		return 0, false
	}
	newFree := p.freeSpacePointer() - uint32(len(tuple))
	copy(p.data[newFree:], tuple)
	p.setFreeSpacePointer(newFree)

	slot = p.TupleCount()
	p.setSlotEntry(slot, newFree, uint32(len(tuple)), false)
	p.setTupleCount(slot + 1)
	return slot, true
}

// Get returns the tuple bytes at slot, or ok=false if the slot is out of
// range, deleted, or already reclaimed.
func (p *slottedPage) Get(slot uint32) ([]byte, bool) {
	if slot >= p.TupleCount() {
		return nil, false
	}
	offset, size, deleted := p.slotEntry(slot)
	if deleted || size == 0 {
		return nil, false
	}
	return p.data[offset : offset+size], true
}

// UpdateInPlace overwrites the tuple at slot with newTuple if it fits in
// the slot's existing allocation. Returns false if it does not fit (the
// caller must fall back to mark-delete + reinsert) or the slot is dead.
func (p *slottedPage) UpdateInPlace(slot uint32, newTuple []byte) bool {
	if slot >= p.TupleCount() {
		return false
	}
	offset, size, deleted := p.slotEntry(slot)
	if deleted || size == 0 || len(newTuple) > int(size) {
		return false
	}
	copy(p.data[offset:offset+uint32(len(newTuple))], newTuple)
	p.setSlotEntry(slot, offset, uint32(len(newTuple)), false)
	return true
}

// MarkDelete tombstones slot without reclaiming its space.
func (p *slottedPage) MarkDelete(slot uint32) bool {
	if slot >= p.TupleCount() {
		return false
	}
	offset, size, deleted := p.slotEntry(slot)
	if deleted {
		return false
	}
	p.setSlotEntry(slot, offset, size, true)
	return true
}

// ApplyDelete finalizes a tombstoned slot, reclaiming its logical size so
// it is no longer visible to GetTuple and cannot be rolled back.
func (p *slottedPage) ApplyDelete(slot uint32) bool {
	if slot >= p.TupleCount() {
		return false
	}
	offset, _, deleted := p.slotEntry(slot)
	if !deleted {
		return false
	}
	p.setSlotEntry(slot, offset, 0, true)
	return true
}

// RollbackDelete un-tombstones a mark-deleted (but not yet applied) slot.
func (p *slottedPage) RollbackDelete(slot uint32) bool {
	if slot >= p.TupleCount() {
		return false
	}
	offset, size, deleted := p.slotEntry(slot)
	if !deleted || size == 0 {
		return false
	}
	p.setSlotEntry(slot, offset, size, false)
	return true
}

// IsLive reports whether slot holds a visible (non-deleted, non-reclaimed)
// tuple.
func (p *slottedPage) IsLive(slot uint32) bool {
	if slot >= p.TupleCount() {
		return false
	}
	_, size, deleted := p.slotEntry(slot)
	return !deleted && size > 0
}

// FirstLiveSlot returns the first live slot number, or ok=false if none.
func (p *slottedPage) FirstLiveSlot() (uint32, bool) {
	return p.NextLiveSlot(0)
}

// NextLiveSlot returns the first live slot at or after from, or ok=false.
func (p *slottedPage) NextLiveSlot(from uint32) (uint32, bool) {
	for s := from; s < p.TupleCount(); s++ {
		if p.IsLive(s) {
			return s, true
		}
	}
	return 0, false
}
