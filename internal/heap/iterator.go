package heap

import (
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/record"
)

// Iterator walks a TableHeap's live tuples in page-then-slot order,
// following next_page_id once a page is exhausted.
type Iterator struct {
	heap   *TableHeap
	pageID diskio.PageID
	slot   uint32
	ended  bool
	row    *record.Row
}

// Valid reports whether the iterator is positioned on a live tuple.
func (it *Iterator) Valid() bool { return !it.ended }

// Row returns the tuple currently under the iterator. Only valid while
// Valid() is true.
func (it *Iterator) Row() *record.Row { return it.row }

// Next advances to the next live tuple, following page links as needed.
func (it *Iterator) Next() error {
	if it.ended {
		return nil
	}
	it.slot++
	return it.advanceToLive()
}

// advanceToLive scans forward from (pageID, slot) for the next live slot,
// crossing page boundaries via next_page_id, until one is found or the
// chain ends.
func (it *Iterator) advanceToLive() error {
	for it.pageID != diskio.InvalidPageID {
		data, err := it.heap.pool.Fetch(it.pageID)
		if err != nil {
			return err
		}
		sp := newSlottedPage(data)

		if s, ok := sp.NextLiveSlot(it.slot); ok {
			tuple, _ := sp.Get(s)
			row, _, derr := record.DeserializeRow(tuple, it.heap.schema)
			if uerr := it.heap.pool.Unpin(it.pageID, false); uerr != nil {
				return uerr
			}
			if derr != nil {
				return derr
			}
			row.ID = record.RowID{Page: it.pageID, Slot: s}
			it.slot = s
			it.row = row
			return nil
		}

		next := sp.NextPageID()
		if err := it.heap.pool.Unpin(it.pageID, false); err != nil {
			return err
		}
		it.pageID = next
		it.slot = 0
	}

	it.ended = true
	it.row = nil
	return nil
}
