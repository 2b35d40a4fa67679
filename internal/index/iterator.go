package index

import (
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/record"
)

// Iterator walks leaves left to right in key order, holding one pinned
// leaf at a time. The end state is (invalid page, index 0).
type Iterator struct {
	tree   *BTree
	pageID diskio.PageID
	index  int
	node   *node
}

// Begin returns an iterator positioned at the tree's leftmost entry.
func (t *BTree) Begin() (*Iterator, error) {
	if t.root == diskio.InvalidPageID {
		return &Iterator{tree: t, pageID: diskio.InvalidPageID}, nil
	}
	pid, n, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, pageID: pid, node: n, index: 0}
	if n.Size() == 0 {
		if err := it.advancePage(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// seek returns an iterator positioned at the first entry whose key is >=
// key.
func (t *BTree) seek(key []byte) (*Iterator, error) {
	if t.root == diskio.InvalidPageID {
		return &Iterator{tree: t, pageID: diskio.InvalidPageID}, nil
	}
	pid, n, err := t.descendToLeaf(key)
	if err != nil {
		return nil, err
	}
	idx, _ := t.leafSearch(n, key)
	it := &Iterator{tree: t, pageID: pid, node: n, index: idx}
	if idx >= n.Size() {
		if err := it.advancePage(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// Valid reports whether the iterator is positioned on an entry.
func (it *Iterator) Valid() bool { return it.pageID != diskio.InvalidPageID }

func (it *Iterator) Key() []byte         { return it.node.LeafKeyAt(it.index) }
func (it *Iterator) RowID() record.RowID { return it.node.LeafRowIDAt(it.index) }

// Next advances to the next entry, crossing leaf boundaries via
// next_page_id as needed.
func (it *Iterator) Next() error {
	if !it.Valid() {
		return nil
	}
	it.index++
	if it.index < it.node.Size() {
		return nil
	}
	return it.advancePage()
}

// advancePage unpins the current leaf and follows next_page_id until a
// non-empty leaf is found or the chain ends.
func (it *Iterator) advancePage() error {
	for {
		next := it.node.NextPageID()
		if err := it.tree.pool.Unpin(it.pageID, false); err != nil {
			return err
		}
		if next == diskio.InvalidPageID {
			it.pageID = diskio.InvalidPageID
			it.node = nil
			it.index = 0
			return nil
		}
		n, err := it.tree.fetch(next)
		if err != nil {
			return err
		}
		it.pageID = next
		it.node = n
		it.index = 0
		if n.Size() > 0 {
			return nil
		}
	}
}

// Close releases the iterator's pinned leaf, if any. Safe to call on an
// already-exhausted iterator.
func (it *Iterator) Close() error {
	if !it.Valid() {
		return nil
	}
	err := it.tree.pool.Unpin(it.pageID, false)
	it.pageID = diskio.InvalidPageID
	it.node = nil
	return err
}

// Operator names a range-scan comparison against a bound key.
type Operator int

const (
	OpEQ Operator = iota
	OpGT
	OpGE
	OpLT
	OpLE
	OpNE
)

// RangeScan returns an iterator realizing op against key, per the
// documented per-operator semantics:
//
//	=   point lookup (iterates 0 or 1 entries)
//	>   first key > K (skips the equal run)
//	>=  first key >= K
//	<   begin() through the first key >= K, exclusive
//	<=  begin() through the first key >= K, inclusive
//	<>  all entries, skipping the equal run
func (t *BTree) RangeScan(op Operator, key []byte) (*Iterator, error) {
	switch op {
	case OpEQ, OpGE:
		return t.seek(key)
	case OpGT:
		it, err := t.seek(key)
		if err != nil {
			return nil, err
		}
		for it.Valid() && t.compare(it.Key(), key) == 0 {
			if err := it.Next(); err != nil {
				return nil, err
			}
		}
		return it, nil
	case OpLT, OpLE, OpNE:
		return t.Begin()
	default:
		return t.Begin()
	}
}

// InRange reports, for bounded operators evaluated while walking forward
// from the iterator RangeScan returned, whether the iterator should still
// be considered part of the scan at its current position. Callers driving
// a = / < / <= / <> scan call this each step and stop once it returns false.
func (t *BTree) InRange(op Operator, cur, bound []byte) bool {
	cmp := t.compare(cur, bound)
	switch op {
	case OpEQ:
		return cmp == 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpNE:
		return true // caller skips the equal run itself; never stops early
	default:
		return true
	}
}
