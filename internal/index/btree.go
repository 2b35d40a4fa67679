package index

import (
	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
	"github.com/nainya/treestore/internal/record"
)

// BTree is a disk-resident B+-tree identified by IndexID, whose root page
// id lives in a shared Roots header page. All leaves are kept at the same
// depth; every node but the root holds between ceil(max/2) and max
// entries.
type BTree struct {
	IndexID   string
	KeySchema *record.Schema

	pool    *buffer.Pool
	roots   *Roots
	keySize int
	maxSize int
	root    diskio.PageID

	log     *logger.Logger
	metrics *metrics.Metrics
}

// OpenBTree wraps an index whose root (if any) is already recorded in
// roots; a never-populated index has root == diskio.InvalidPageID.
func OpenBTree(indexID string, keySchema *record.Schema, maxSize int, pool *buffer.Pool, roots *Roots, log *logger.Logger, m *metrics.Metrics) (*BTree, error) {
	root, ok, err := roots.Get(indexID)
	if err != nil {
		return nil, err
	}
	if !ok {
		root = diskio.InvalidPageID
	}
	return &BTree{
		IndexID:   indexID,
		KeySchema: keySchema,
		pool:      pool,
		roots:     roots,
		keySize:   KeySize(keySchema),
		maxSize:   maxSize,
		root:      root,
		log:       log.Component("btree"),
		metrics:   m,
	}, nil
}

func (t *BTree) fetch(pid diskio.PageID) (*node, error) {
	data, err := t.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	return wrapNode(data, t.keySize), nil
}

func (t *BTree) unpin(pid diskio.PageID, dirty bool) { t.pool.Unpin(pid, dirty) }

func (t *BTree) minSize(maxSize int) int { return (maxSize + 1) / 2 }

// compare orders two keys of this tree's key schema.
func (t *BTree) compare(a, b []byte) int { return CompareKeys(a, b, t.KeySchema) }

// leafSearch returns the insertion point for key among n's entries and
// whether key is present exactly there.
func (t *BTree) leafSearch(n *node, key []byte) (idx int, found bool) {
	size := n.Size()
	lo, hi := 0, size
	for lo < hi {
		mid := (lo + hi) / 2
		if t.compare(n.LeafKeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < size && t.compare(n.LeafKeyAt(lo), key) == 0
}

// internalChildIndex finds the first separator (slots 1..size-1) greater
// than key and descends to the child just before it.
func (t *BTree) internalChildIndex(n *node, key []byte) int {
	lo, hi := 1, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if t.compare(n.InternalKeyAt(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// descendToLeaf walks from the root to the leaf that would hold key,
// pinning only the leaf on return.
func (t *BTree) descendToLeaf(key []byte) (diskio.PageID, *node, error) {
	pid := t.root
	for {
		n, err := t.fetch(pid)
		if err != nil {
			return diskio.InvalidPageID, nil, err
		}
		if n.IsLeaf() {
			return pid, n, nil
		}
		childIdx := t.internalChildIndex(n, key)
		child := n.InternalChildAt(childIdx)
		t.unpin(pid, false)
		pid = child
	}
}

// leftmostLeaf returns the pinned leftmost leaf of the tree.
func (t *BTree) leftmostLeaf() (diskio.PageID, *node, error) {
	pid := t.root
	for {
		n, err := t.fetch(pid)
		if err != nil {
			return diskio.InvalidPageID, nil, err
		}
		if n.IsLeaf() {
			return pid, n, nil
		}
		child := n.InternalChildAt(0)
		t.unpin(pid, false)
		pid = child
	}
}

// Search performs a point lookup.
func (t *BTree) Search(key []byte) (record.RowID, bool, error) {
	if t.root == diskio.InvalidPageID {
		return record.RowID{}, false, nil
	}
	pid, n, err := t.descendToLeaf(key)
	if err != nil {
		return record.RowID{}, false, err
	}
	idx, found := t.leafSearch(n, key)
	var rid record.RowID
	if found {
		rid = n.LeafRowIDAt(idx)
	}
	t.unpin(pid, false)
	return rid, found, nil
}

// Insert adds (key, rid). Duplicate keys are rejected.
func (t *BTree) Insert(key []byte, rid record.RowID) error {
	if t.root == diskio.InvalidPageID {
		pid, data, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		n := wrapNode(data, t.keySize)
		n.initLeaf(pid, diskio.InvalidPageID, t.maxSize)
		n.leafInsertAt(0, key, rid)
		if err := t.unpinErr(pid, true); err != nil {
			return err
		}
		t.root = pid
		return t.roots.Set(t.IndexID, pid)
	}

	pid, n, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	idx, found := t.leafSearch(n, key)
	if found {
		t.unpin(pid, false)
		return dberr.ErrConflict
	}
	n.leafInsertAt(idx, key, rid)
	if n.Size() <= n.MaxSize() {
		return t.unpinErr(pid, true)
	}

	newLeaf, promote, err := t.splitLeaf(n)
	if err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.BTreeSplitsTotal.Inc()
	}
	return t.insertIntoParent(n, promote, newLeaf)
}

func (t *BTree) unpinErr(pid diskio.PageID, dirty bool) error { return t.pool.Unpin(pid, dirty) }

// splitLeaf moves the upper half of n's entries to a new sibling leaf,
// linking it after n. The new leaf is left pinned for the caller to unpin.
func (t *BTree) splitLeaf(n *node) (*node, []byte, error) {
	newPID, newData, err := t.pool.NewPage()
	if err != nil {
		return nil, nil, err
	}
	newLeaf := wrapNode(newData, t.keySize)
	newLeaf.initLeaf(newPID, n.ParentID(), n.MaxSize())

	mid := n.Size() / 2
	for i := mid; i < n.Size(); i++ {
		newLeaf.leafInsertAt(newLeaf.Size(), n.LeafKeyAt(i), n.LeafRowIDAt(i))
	}
	newLeaf.setNextPageID(n.NextPageID())
	n.setNextPageID(newPID)
	n.setSize(mid)

	promote := append([]byte(nil), newLeaf.LeafKeyAt(0)...)
	return newLeaf, promote, nil
}

// splitInternal moves the upper half of n's (key, child) pairs to a new
// sibling, promoting the middle key. Migrated children are reparented.
// The new sibling is left pinned for the caller to unpin.
func (t *BTree) splitInternal(n *node) (*node, []byte, error) {
	newPID, newData, err := t.pool.NewPage()
	if err != nil {
		return nil, nil, err
	}
	newNode := wrapNode(newData, t.keySize)
	newNode.initInternal(newPID, n.ParentID(), n.MaxSize())

	mid := n.Size() / 2
	promote := append([]byte(nil), n.InternalKeyAt(mid)...)

	newNode.setInternalEntry(0, nil, n.InternalChildAt(mid))
	newNode.setSize(1)
	for i := mid + 1; i < n.Size(); i++ {
		newNode.internalInsertAt(newNode.Size(), n.InternalKeyAt(i), n.InternalChildAt(i))
	}
	n.setSize(mid)

	for i := 0; i < newNode.Size(); i++ {
		childPID := newNode.InternalChildAt(i)
		child, err := t.fetch(childPID)
		if err != nil {
			return nil, nil, err
		}
		child.SetParentID(newPID)
		if err := t.unpinErr(childPID, true); err != nil {
			return nil, nil, err
		}
	}

	return newNode, promote, nil
}

// insertIntoParent records newNode as old's new right sibling, separated
// by key, in old's parent — creating a new root if old had none. It
// unpins old and newNode exactly once each.
func (t *BTree) insertIntoParent(old *node, key []byte, newNode *node) error {
	if old.ParentID() == diskio.InvalidPageID {
		rootPID, rootData, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		newRoot := wrapNode(rootData, t.keySize)
		newRoot.initInternal(rootPID, diskio.InvalidPageID, old.MaxSize())
		newRoot.setInternalEntry(0, nil, old.PageID())
		newRoot.setSize(1)
		newRoot.internalInsertAt(1, key, newNode.PageID())

		old.SetParentID(rootPID)
		newNode.SetParentID(rootPID)

		if err := t.unpinErr(old.PageID(), true); err != nil {
			return err
		}
		if err := t.unpinErr(newNode.PageID(), true); err != nil {
			return err
		}
		if err := t.unpinErr(rootPID, true); err != nil {
			return err
		}

		t.root = rootPID
		return t.roots.Set(t.IndexID, rootPID)
	}

	parentPID := old.ParentID()
	parent, err := t.fetch(parentPID)
	if err != nil {
		return err
	}

	idx := parent.ChildIndex(old.PageID())
	parent.internalInsertAt(idx+1, key, newNode.PageID())
	newNode.SetParentID(parentPID)

	if err := t.unpinErr(old.PageID(), true); err != nil {
		return err
	}
	if err := t.unpinErr(newNode.PageID(), true); err != nil {
		return err
	}

	if parent.Size() <= parent.MaxSize() {
		return t.unpinErr(parentPID, true)
	}

	newParent, promote, err := t.splitInternal(parent)
	if err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.BTreeSplitsTotal.Inc()
	}
	return t.insertIntoParent(parent, promote, newParent)
}

// Delete removes key, a no-op if absent.
func (t *BTree) Delete(key []byte) error {
	if t.root == diskio.InvalidPageID {
		return nil
	}
	pid, n, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	idx, found := t.leafSearch(n, key)
	if !found {
		t.unpin(pid, false)
		return nil
	}
	n.leafRemoveAt(idx)

	if n.PageID() == t.root {
		if n.Size() == 0 {
			if err := t.unpinErr(pid, true); err != nil {
				return err
			}
			if err := t.pool.Delete(pid); err != nil {
				return err
			}
			t.root = diskio.InvalidPageID
			return t.roots.Delete(t.IndexID)
		}
		return t.unpinErr(pid, true)
	}

	if n.Size() >= t.minSize(n.MaxSize()) {
		return t.unpinErr(pid, true)
	}
	return t.coalesceOrRedistribute(n)
}

// coalesceOrRedistribute handles an underflowed non-root node n (pinned,
// dirty): merge with a sibling if their combined size fits one page,
// otherwise redistribute one entry across the boundary. Recurses upward
// if a merge underflows the parent.
func (t *BTree) coalesceOrRedistribute(n *node) error {
	parentPID := n.ParentID()
	parent, err := t.fetch(parentPID)
	if err != nil {
		return err
	}
	idx := parent.ChildIndex(n.PageID())
	var siblingIdx int
	if idx == 0 {
		siblingIdx = idx + 1
	} else {
		siblingIdx = idx - 1
	}
	siblingPID := parent.InternalChildAt(siblingIdx)
	sibling, err := t.fetch(siblingPID)
	if err != nil {
		return err
	}

	if n.IsLeaf() {
		if n.Size()+sibling.Size() <= n.MaxSize() {
			return t.mergeLeaves(n, sibling, idx, siblingIdx, parent, parentPID)
		}
		return t.redistributeLeaves(n, sibling, idx, siblingIdx, parent, parentPID)
	}
	if n.Size()+sibling.Size()+1 <= n.MaxSize() {
		return t.mergeInternal(n, sibling, idx, siblingIdx, parent, parentPID)
	}
	return t.redistributeInternal(n, sibling, idx, siblingIdx, parent, parentPID)
}

func (t *BTree) mergeLeaves(n, sibling *node, idx, siblingIdx int, parent *node, parentPID diskio.PageID) error {
	left, right, rightIdx := n, sibling, siblingIdx
	if siblingIdx < idx {
		left, right, rightIdx = sibling, n, idx
	}
	for i := 0; i < right.Size(); i++ {
		left.leafInsertAt(left.Size(), right.LeafKeyAt(i), right.LeafRowIDAt(i))
	}
	left.setNextPageID(right.NextPageID())
	parent.internalRemoveAt(rightIdx)

	if err := t.unpinErr(left.PageID(), true); err != nil {
		return err
	}
	if err := t.unpinErr(right.PageID(), false); err != nil {
		return err
	}
	if err := t.pool.Delete(right.PageID()); err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.BTreeMergesTotal.Inc()
	}
	return t.afterParentShrink(parent, parentPID)
}

func (t *BTree) redistributeLeaves(n, sibling *node, idx, siblingIdx int, parent *node, parentPID diskio.PageID) error {
	if siblingIdx < idx {
		last := sibling.Size() - 1
		key := append([]byte(nil), sibling.LeafKeyAt(last)...)
		rid := sibling.LeafRowIDAt(last)
		sibling.leafRemoveAt(last)
		n.leafInsertAt(0, key, rid)
		parent.setInternalEntry(idx, n.LeafKeyAt(0), parent.InternalChildAt(idx))
	} else {
		key := append([]byte(nil), sibling.LeafKeyAt(0)...)
		rid := sibling.LeafRowIDAt(0)
		sibling.leafRemoveAt(0)
		n.leafInsertAt(n.Size(), key, rid)
		parent.setInternalEntry(siblingIdx, sibling.LeafKeyAt(0), parent.InternalChildAt(siblingIdx))
	}
	if err := t.unpinErr(n.PageID(), true); err != nil {
		return err
	}
	if err := t.unpinErr(sibling.PageID(), true); err != nil {
		return err
	}
	return t.unpinErr(parentPID, true)
}

func (t *BTree) mergeInternal(n, sibling *node, idx, siblingIdx int, parent *node, parentPID diskio.PageID) error {
	left, right, rightIdx := n, sibling, siblingIdx
	if siblingIdx < idx {
		left, right, rightIdx = sibling, n, idx
	}
	bridge := append([]byte(nil), parent.InternalKeyAt(rightIdx)...)
	left.internalInsertAt(left.Size(), bridge, right.InternalChildAt(0))
	for i := 1; i < right.Size(); i++ {
		left.internalInsertAt(left.Size(), right.InternalKeyAt(i), right.InternalChildAt(i))
	}
	for i := 0; i < right.Size(); i++ {
		childPID := right.InternalChildAt(i)
		child, err := t.fetch(childPID)
		if err != nil {
			return err
		}
		child.SetParentID(left.PageID())
		if err := t.unpinErr(childPID, true); err != nil {
			return err
		}
	}
	parent.internalRemoveAt(rightIdx)

	if err := t.unpinErr(left.PageID(), true); err != nil {
		return err
	}
	if err := t.unpinErr(right.PageID(), false); err != nil {
		return err
	}
	if err := t.pool.Delete(right.PageID()); err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.BTreeMergesTotal.Inc()
	}
	return t.afterParentShrink(parent, parentPID)
}

func (t *BTree) redistributeInternal(n, sibling *node, idx, siblingIdx int, parent *node, parentPID diskio.PageID) error {
	if siblingIdx < idx {
		last := sibling.Size() - 1
		borrowedChild := sibling.InternalChildAt(last)
		newParentKeyAtIdx := append([]byte(nil), sibling.InternalKeyAt(last)...)
		bridgeForN := append([]byte(nil), parent.InternalKeyAt(idx)...)
		sibling.setSize(last)
		n.internalPrependChild(bridgeForN, borrowedChild)
		parent.setInternalEntry(idx, newParentKeyAtIdx, parent.InternalChildAt(idx))

		child, err := t.fetch(borrowedChild)
		if err != nil {
			return err
		}
		child.SetParentID(n.PageID())
		if err := t.unpinErr(borrowedChild, true); err != nil {
			return err
		}
	} else {
		borrowedChild := sibling.InternalChildAt(0)
		newParentKeyAtSibling := append([]byte(nil), sibling.InternalKeyAt(1)...)
		bridgeForN := append([]byte(nil), parent.InternalKeyAt(siblingIdx)...)
		sibling.internalRemoveAt(0)
		n.internalInsertAt(n.Size(), bridgeForN, borrowedChild)
		parent.setInternalEntry(siblingIdx, newParentKeyAtSibling, parent.InternalChildAt(siblingIdx))

		child, err := t.fetch(borrowedChild)
		if err != nil {
			return err
		}
		child.SetParentID(n.PageID())
		if err := t.unpinErr(borrowedChild, true); err != nil {
			return err
		}
	}
	if err := t.unpinErr(n.PageID(), true); err != nil {
		return err
	}
	if err := t.unpinErr(sibling.PageID(), true); err != nil {
		return err
	}
	return t.unpinErr(parentPID, true)
}

// internalPrependChild inserts child as n's new slot 0, pushing the old
// slot 0 child to slot 1 under boundaryKey.
func (n *node) internalPrependChild(boundaryKey []byte, child diskio.PageID) {
	oldChild0 := n.InternalChildAt(0)
	n.internalInsertAt(1, boundaryKey, oldChild0)
	n.setInternalEntry(0, nil, child)
}

// afterParentShrink handles root replacement or recursive underflow after
// a merge removed one of parent's entries. parent is pinned and dirty.
func (t *BTree) afterParentShrink(parent *node, parentPID diskio.PageID) error {
	if parentPID == t.root {
		if parent.Size() == 1 {
			onlyChild := parent.InternalChildAt(0)
			if err := t.unpinErr(parentPID, true); err != nil {
				return err
			}
			if err := t.pool.Delete(parentPID); err != nil {
				return err
			}
			child, err := t.fetch(onlyChild)
			if err != nil {
				return err
			}
			child.SetParentID(diskio.InvalidPageID)
			if err := t.unpinErr(onlyChild, true); err != nil {
				return err
			}
			t.root = onlyChild
			return t.roots.Set(t.IndexID, onlyChild)
		}
		return t.unpinErr(parentPID, true)
	}
	if parent.Size() >= t.minSize(parent.MaxSize()) {
		return t.unpinErr(parentPID, true)
	}
	return t.coalesceOrRedistribute(parent)
}
