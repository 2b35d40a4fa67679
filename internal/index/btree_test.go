// ABOUTME: Tests for the disk-resident B+-tree
// ABOUTME: Covers point lookup, split-driven growth, deletion, and iteration

package index

import (
	"path/filepath"
	"testing"

	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/record"
)

func newTestTree(t *testing.T, maxSize int) *BTree {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewLogger(logger.Config{Level: "error"})
	dm, err := diskio.Open(filepath.Join(dir, "idx.db"), log, nil)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(64, dm, buffer.LRU, log, nil)

	roots, _, err := CreateRoots(pool)
	if err != nil {
		t.Fatalf("CreateRoots: %v", err)
	}

	keySchema := record.NewSchema([]record.Column{{Name: "k", Type: record.TypeInt32}})
	bt, err := OpenBTree("test_idx", keySchema, maxSize, pool, roots, log, nil)
	if err != nil {
		t.Fatalf("OpenBTree: %v", err)
	}
	return bt
}

func keyFor(t *testing.T, bt *BTree, v int32) []byte {
	row := &record.Row{Fields: []record.Field{record.NewInt32Field(v)}}
	return EncodeKey(row, bt.KeySchema)
}

func TestBTreeInsertAndSearch(t *testing.T) {
	bt := newTestTree(t, 4)
	for i := int32(0); i < 50; i++ {
		k := keyFor(t, bt, i)
		if err := bt.Insert(k, record.RowID{Page: diskio.PageID(i), Slot: 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(0); i < 50; i++ {
		rid, ok, err := bt.Search(keyFor(t, bt, i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if !ok || rid.Page != diskio.PageID(i) {
			t.Fatalf("Search(%d) = (%v, %v), want rid.Page=%d", i, rid, ok, i)
		}
	}

	_, ok, err := bt.Search(keyFor(t, bt, 999))
	if err != nil {
		t.Fatalf("Search(999): %v", err)
	}
	if ok {
		t.Fatal("Search(999) found a nonexistent key")
	}
}

func TestBTreeRejectsDuplicates(t *testing.T) {
	bt := newTestTree(t, 4)
	k := keyFor(t, bt, 1)
	if err := bt.Insert(k, record.RowID{Page: 1, Slot: 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := bt.Insert(k, record.RowID{Page: 2, Slot: 0}); err == nil {
		t.Fatal("Insert duplicate key succeeded, want error")
	}
}

func TestBTreeIterationOrder(t *testing.T) {
	bt := newTestTree(t, 4)
	const n = 100
	for i := int32(n - 1); i >= 0; i-- { // insert in reverse to exercise splits either way
		if err := bt.Insert(keyFor(t, bt, i), record.RowID{Page: diskio.PageID(i), Slot: 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	it, err := bt.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	var last int32 = -1
	count := 0
	for it.Valid() {
		fields := DecodeKey(it.Key(), bt.KeySchema)
		v := fields[0].I32
		if v <= last {
			t.Fatalf("iteration out of order: %d after %d", v, last)
		}
		last = v
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if count != n {
		t.Fatalf("iterated %d entries, want %d", count, n)
	}
}

func TestBTreeDeleteShrinksAndRebalances(t *testing.T) {
	bt := newTestTree(t, 4)
	const n = 60
	for i := int32(0); i < n; i++ {
		if err := bt.Insert(keyFor(t, bt, i), record.RowID{Page: diskio.PageID(i), Slot: 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(0); i < n; i += 2 {
		if err := bt.Delete(keyFor(t, bt, i)); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}

	for i := int32(0); i < n; i++ {
		_, ok, err := bt.Search(keyFor(t, bt, i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		wantOK := i%2 != 0
		if ok != wantOK {
			t.Fatalf("Search(%d) ok=%v, want %v", i, ok, wantOK)
		}
	}

	it, err := bt.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	count := 0
	for it.Valid() {
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if count != n/2 {
		t.Fatalf("post-delete iteration count = %d, want %d", count, n/2)
	}
}

func TestBTreeDeleteToEmpty(t *testing.T) {
	bt := newTestTree(t, 4)
	for i := int32(0); i < 10; i++ {
		if err := bt.Insert(keyFor(t, bt, i), record.RowID{Page: diskio.PageID(i), Slot: 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int32(0); i < 10; i++ {
		if err := bt.Delete(keyFor(t, bt, i)); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}
	if bt.root != diskio.InvalidPageID {
		t.Fatalf("tree root = %v after deleting all entries, want InvalidPageID", bt.root)
	}
	it, err := bt.Begin()
	if err != nil {
		t.Fatalf("Begin on empty tree: %v", err)
	}
	if it.Valid() {
		t.Fatal("Begin() on empty tree returned a valid iterator")
	}
}

func TestBTreeDeleteAbsentKeyIsNoop(t *testing.T) {
	bt := newTestTree(t, 4)
	if err := bt.Insert(keyFor(t, bt, 1), record.RowID{Page: 1, Slot: 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := bt.Delete(keyFor(t, bt, 42)); err != nil {
		t.Fatalf("Delete(absent): %v", err)
	}
	_, ok, err := bt.Search(keyFor(t, bt, 1))
	if err != nil || !ok {
		t.Fatalf("Search(1) after no-op delete = (%v, %v)", ok, err)
	}
}

func TestBTreeRangeScanGreaterEqual(t *testing.T) {
	bt := newTestTree(t, 4)
	for i := int32(0); i < 30; i++ {
		if err := bt.Insert(keyFor(t, bt, i), record.RowID{Page: diskio.PageID(i), Slot: 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	it, err := bt.RangeScan(OpGE, keyFor(t, bt, 20))
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	count := 0
	for it.Valid() {
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if count != 10 {
		t.Fatalf("RangeScan(>=20) visited %d entries, want 10", count)
	}
}

func TestBTreeLargeRandomWorkload(t *testing.T) {
	bt := newTestTree(t, 5)
	present := make(map[int32]bool)
	for round := 0; round < 3; round++ {
		base := int32(round * 100)
		for i := int32(0); i < 80; i++ {
			v := base + i
			if err := bt.Insert(keyFor(t, bt, v), record.RowID{Page: diskio.PageID(v), Slot: 0}); err != nil {
				t.Fatalf("Insert(%d): %v", v, err)
			}
			present[v] = true
		}
		for i := int32(0); i < 40; i++ {
			v := base + i*2
			if err := bt.Delete(keyFor(t, bt, v)); err != nil {
				t.Fatalf("Delete(%d): %v", v, err)
			}
			delete(present, v)
		}
	}
	for v := range present {
		if _, ok, err := bt.Search(keyFor(t, bt, v)); err != nil || !ok {
			t.Fatalf("Search(%d) = (%v, %v), want found", v, ok, err)
		}
	}
}
