// ABOUTME: Tests for the slotted page and table heap
// ABOUTME: Covers insert/update/delete and iteration ordering

package heap

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/record"
)

func newTestHeap(t *testing.T, capacity int) (*TableHeap, *record.Schema) {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewLogger(logger.Config{Level: "error"})
	dm, err := diskio.Open(filepath.Join(dir, "heap.db"), log, nil)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(capacity, dm, buffer.LRU, log, nil)

	realSchema := record.NewSchema([]record.Column{
		{Name: "id", Type: record.TypeInt32},
		{Name: "label", Type: record.TypeChar, Length: 8},
	})

	th, err := NewTableHeap(pool, realSchema, log, nil)
	if err != nil {
		t.Fatalf("NewTableHeap: %v", err)
	}
	return th, realSchema
}

func TestHeapInsertAndGet(t *testing.T) {
	th, schema := newTestHeap(t, 8)

	row := &record.Row{Fields: []record.Field{
		record.NewInt32Field(1),
		record.NewCharField("alpha"),
	}}
	if err := th.InsertTuple(row); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}

	got := &record.Row{ID: row.ID}
	if err := th.GetTuple(got); err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if got.Fields[0].I32 != 1 || got.Fields[1].Str != "alpha" {
		t.Fatalf("GetTuple = %+v, want id=1 label=alpha", got.Fields)
	}
	_ = schema
}

func TestHeapUpdateInPlace(t *testing.T) {
	th, _ := newTestHeap(t, 8)

	row := &record.Row{Fields: []record.Field{
		record.NewInt32Field(1),
		record.NewCharField("ab"),
	}}
	if err := th.InsertTuple(row); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	rid := row.ID

	// Same-size update: fits in place.
	updated := &record.Row{Fields: []record.Field{
		record.NewInt32Field(2),
		record.NewCharField("cd"),
	}}
	if err := th.UpdateTuple(updated, rid); err != nil {
		t.Fatalf("UpdateTuple: %v", err)
	}
	if updated.ID != rid {
		t.Fatalf("UpdateTuple in-place should keep rid %v, got %v", rid, updated.ID)
	}

	got := &record.Row{ID: rid}
	if err := th.GetTuple(got); err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if got.Fields[0].I32 != 2 {
		t.Fatalf("GetTuple after update = %+v, want id=2", got.Fields)
	}
}

func TestHeapDeleteLifecycle(t *testing.T) {
	th, _ := newTestHeap(t, 8)

	row := &record.Row{Fields: []record.Field{record.NewInt32Field(5), record.NewCharField("x")}}
	if err := th.InsertTuple(row); err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	rid := row.ID

	if err := th.MarkDelete(rid); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
	if err := th.RollbackDelete(rid); err != nil {
		t.Fatalf("RollbackDelete: %v", err)
	}
	got := &record.Row{ID: rid}
	if err := th.GetTuple(got); err != nil {
		t.Fatalf("GetTuple after rollback: %v", err)
	}

	if err := th.MarkDelete(rid); err != nil {
		t.Fatalf("MarkDelete: %v", err)
	}
	if err := th.ApplyDelete(rid); err != nil {
		t.Fatalf("ApplyDelete: %v", err)
	}
	if err := th.GetTuple(&record.Row{ID: rid}); err == nil {
		t.Fatal("GetTuple after ApplyDelete succeeded, want error")
	}
}

func TestHeapIterationOrder(t *testing.T) {
	th, _ := newTestHeap(t, 8)

	const n = 20
	for i := 0; i < n; i++ {
		row := &record.Row{Fields: []record.Field{
			record.NewInt32Field(int32(i)),
			record.NewCharField(fmt.Sprintf("v%02d", i)),
		}}
		if err := th.InsertTuple(row); err != nil {
			t.Fatalf("InsertTuple(%d): %v", i, err)
		}
	}

	it, err := th.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	count := 0
	var last int32 = -1
	for it.Valid() {
		v := it.Row().Fields[0].I32
		if v <= last {
			t.Fatalf("iteration out of order: got %d after %d", v, last)
		}
		last = v
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if count != n {
		t.Fatalf("iterated %d tuples, want %d", count, n)
	}
}
