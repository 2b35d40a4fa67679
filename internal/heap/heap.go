package heap

import (
	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
	"github.com/nainya/treestore/internal/record"
)

// TableHeap is a linked list of slotted pages starting at FirstPageID,
// storing one table's tuples under Schema.
type TableHeap struct {
	pool        *buffer.Pool
	FirstPageID diskio.PageID
	schema      *record.Schema

	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewTableHeap allocates a fresh, empty heap.
func NewTableHeap(pool *buffer.Pool, schema *record.Schema, log *logger.Logger, m *metrics.Metrics) (*TableHeap, error) {
	pageID, data, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	newSlottedPage(data).initEmpty()
	if err := pool.Unpin(pageID, true); err != nil {
		return nil, err
	}
	return &TableHeap{pool: pool, FirstPageID: pageID, schema: schema, log: log.Component("heap"), metrics: m}, nil
}

// OpenTableHeap wraps an existing heap whose first page is already on disk.
func OpenTableHeap(pool *buffer.Pool, firstPageID diskio.PageID, schema *record.Schema, log *logger.Logger, m *metrics.Metrics) *TableHeap {
	return &TableHeap{pool: pool, FirstPageID: firstPageID, schema: schema, log: log.Component("heap"), metrics: m}
}

// InsertTuple serializes row under the heap's schema and appends it to the
// first page in the chain with room, allocating a new last page if none of
// the existing pages accept it. row.ID is set to the tuple's new location.
func (h *TableHeap) InsertTuple(row *record.Row) error {
	buf := make([]byte, row.SerializeSize(h.schema))
	if _, err := row.Serialize(buf, h.schema); err != nil {
		return err
	}

	pageID := h.FirstPageID
	var lastPageID diskio.PageID
	for pageID != diskio.InvalidPageID {
		data, err := h.pool.Fetch(pageID)
		if err != nil {
			return err
		}
		sp := newSlottedPage(data)
		if slot, ok := sp.Insert(buf); ok {
			row.ID = record.RowID{Page: pageID, Slot: slot}
			if err := h.pool.Unpin(pageID, true); err != nil {
				return err
			}
			if h.metrics != nil {
				h.metrics.HeapInsertsTotal.Inc()
			}
			return nil
		}
		next := sp.NextPageID()
		if err := h.pool.Unpin(pageID, false); err != nil {
			return err
		}
		lastPageID = pageID
		pageID = next
	}

	// No page in the chain accepted the tuple; append a new one.
	newPageID, newData, err := h.pool.NewPage()
	if err != nil {
		return err
	}
	sp := newSlottedPage(newData)
	sp.initEmpty()
	slot, ok := sp.Insert(buf)
	if !ok {
		h.pool.Unpin(newPageID, false)
		return dberr.New(dberr.Failed, "TableHeap.InsertTuple", nil)
	}
	if err := h.pool.Unpin(newPageID, true); err != nil {
		return err
	}

	lastData, err := h.pool.Fetch(lastPageID)
	if err != nil {
		return err
	}
	newSlottedPage(lastData).setNextPageID(newPageID)
	if err := h.pool.Unpin(lastPageID, true); err != nil {
		return err
	}

	row.ID = record.RowID{Page: newPageID, Slot: slot}
	if h.metrics != nil {
		h.metrics.HeapInsertsTotal.Inc()
	}
	return nil
}

// GetTuple fetches the tuple at row.ID and populates row's fields in place.
func (h *TableHeap) GetTuple(row *record.Row) error {
	data, err := h.pool.Fetch(row.ID.Page)
	if err != nil {
		return err
	}
	defer h.pool.Unpin(row.ID.Page, false)

	sp := newSlottedPage(data)
	tuple, ok := sp.Get(row.ID.Slot)
	if !ok {
		return dberr.New(dberr.KeyNotFound, "TableHeap.GetTuple", nil)
	}
	got, _, err := record.DeserializeRow(tuple, h.schema)
	if err != nil {
		return err
	}
	row.ID = got.ID
	row.Fields = got.Fields
	return nil
}

// UpdateTuple tries an in-place update at rid; on space failure it
// mark-deletes the old tuple and inserts newRow as a fresh tuple,
// rolling back the delete if the reinsert itself fails.
func (h *TableHeap) UpdateTuple(newRow *record.Row, rid record.RowID) error {
	data, err := h.pool.Fetch(rid.Page)
	if err != nil {
		return err
	}
	sp := newSlottedPage(data)
	if _, ok := sp.Get(rid.Slot); !ok {
		h.pool.Unpin(rid.Page, false)
		return dberr.New(dberr.KeyNotFound, "TableHeap.UpdateTuple", nil)
	}

	buf := make([]byte, newRow.SerializeSize(h.schema))
	if _, err := newRow.Serialize(buf, h.schema); err != nil {
		h.pool.Unpin(rid.Page, false)
		return err
	}

	if sp.UpdateInPlace(rid.Slot, buf) {
		newRow.ID = rid
		if err := h.pool.Unpin(rid.Page, true); err != nil {
			return err
		}
		if h.metrics != nil {
			h.metrics.HeapUpdatesTotal.Inc()
		}
		return nil
	}

	sp.MarkDelete(rid.Slot)
	if err := h.pool.Unpin(rid.Page, true); err != nil {
		return err
	}

	if err := h.InsertTuple(newRow); err != nil {
		data, fetchErr := h.pool.Fetch(rid.Page)
		if fetchErr == nil {
			newSlottedPage(data).RollbackDelete(rid.Slot)
			h.pool.Unpin(rid.Page, true)
		}
		return err
	}

	data, err = h.pool.Fetch(rid.Page)
	if err != nil {
		return err
	}
	newSlottedPage(data).ApplyDelete(rid.Slot)
	if err := h.pool.Unpin(rid.Page, true); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.HeapUpdatesTotal.Inc()
	}
	return nil
}

// MarkDelete tombstones rid without reclaiming its space.
func (h *TableHeap) MarkDelete(rid record.RowID) error {
	return h.withPage(rid.Page, func(sp *slottedPage) error {
		if !sp.MarkDelete(rid.Slot) {
			return dberr.New(dberr.KeyNotFound, "TableHeap.MarkDelete", nil)
		}
		return nil
	})
}

// ApplyDelete finalizes a previously mark-deleted tuple.
func (h *TableHeap) ApplyDelete(rid record.RowID) error {
	err := h.withPage(rid.Page, func(sp *slottedPage) error {
		if !sp.ApplyDelete(rid.Slot) {
			return dberr.New(dberr.KeyNotFound, "TableHeap.ApplyDelete", nil)
		}
		return nil
	})
	if err == nil && h.metrics != nil {
		h.metrics.HeapDeletesTotal.Inc()
	}
	return err
}

// RollbackDelete reverses a mark-delete that has not yet been applied.
func (h *TableHeap) RollbackDelete(rid record.RowID) error {
	return h.withPage(rid.Page, func(sp *slottedPage) error {
		if !sp.RollbackDelete(rid.Slot) {
			return dberr.New(dberr.Failed, "TableHeap.RollbackDelete", nil)
		}
		return nil
	})
}

func (h *TableHeap) withPage(pageID diskio.PageID, fn func(*slottedPage) error) error {
	data, err := h.pool.Fetch(pageID)
	if err != nil {
		return err
	}
	err = fn(newSlottedPage(data))
	if uerr := h.pool.Unpin(pageID, err == nil); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

// NextPageIDOf reads the next-page link out of a raw page buffer fetched
// from the buffer pool, for callers (the catalog's DropTable) that walk a
// heap's page chain without going through a TableHeap.
func NextPageIDOf(data []byte) diskio.PageID {
	return newSlottedPage(data).NextPageID()
}

// Begin returns an iterator positioned at the heap's first live tuple.
func (h *TableHeap) Begin() (*Iterator, error) {
	it := &Iterator{heap: h, pageID: h.FirstPageID, slot: 0}
	if err := it.advanceToLive(); err != nil {
		return nil, err
	}
	return it, nil
}
