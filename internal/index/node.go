package index

import (
	"encoding/binary"

	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/record"
)

// pageKind distinguishes leaf from internal B+-tree pages.
type pageKind byte

const (
	kindLeaf     pageKind = 1
	kindInternal pageKind = 2
)

// Common header, present on every B+-tree page:
//
//	[0]      page kind (1 byte)
//	[4:8]    page id
//	[8:12]   parent id
//	[12:16]  size (entry count)
//	[16:20]  max size
//	[20:24]  key size
//	[24:32]  lsn
//	[32:36]  next page id (leaves only; unused on internal pages)
const nodeHeaderSize = 36

type node struct {
	data     []byte
	keySize  int
	rowIDLen int // leaf row-id payload width: 4 (page) + 4 (slot)
}

func wrapNode(data []byte, keySize int) *node {
	return &node{data: data, keySize: keySize, rowIDLen: 8}
}

func (n *node) Kind() pageKind                { return pageKind(n.data[0]) }
func (n *node) setKind(k pageKind)            { n.data[0] = byte(k) }
func (n *node) PageID() diskio.PageID         { return diskio.PageID(int32(binary.LittleEndian.Uint32(n.data[4:8]))) }
func (n *node) setPageID(id diskio.PageID)    { binary.LittleEndian.PutUint32(n.data[4:8], uint32(int32(id))) }
func (n *node) ParentID() diskio.PageID       { return diskio.PageID(int32(binary.LittleEndian.Uint32(n.data[8:12]))) }
func (n *node) SetParentID(id diskio.PageID)  { binary.LittleEndian.PutUint32(n.data[8:12], uint32(int32(id))) }
func (n *node) Size() int                     { return int(binary.LittleEndian.Uint32(n.data[12:16])) }
func (n *node) setSize(s int)                 { binary.LittleEndian.PutUint32(n.data[12:16], uint32(s)) }
func (n *node) MaxSize() int                  { return int(binary.LittleEndian.Uint32(n.data[16:20])) }
func (n *node) setMaxSize(s int)              { binary.LittleEndian.PutUint32(n.data[16:20], uint32(s)) }
func (n *node) KeySize() int                  { return int(binary.LittleEndian.Uint32(n.data[20:24])) }
func (n *node) setKeySizeHeader(s int)        { binary.LittleEndian.PutUint32(n.data[20:24], uint32(s)) }
func (n *node) LSN() uint64                   { return binary.LittleEndian.Uint64(n.data[24:32]) }
func (n *node) SetLSN(v uint64)               { binary.LittleEndian.PutUint64(n.data[24:32], v) }
func (n *node) NextPageID() diskio.PageID {
	return diskio.PageID(int32(binary.LittleEndian.Uint32(n.data[32:36])))
}
func (n *node) setNextPageID(id diskio.PageID) {
	binary.LittleEndian.PutUint32(n.data[32:36], uint32(int32(id)))
}

func (n *node) IsLeaf() bool { return n.Kind() == kindLeaf }

// initLeaf formats a freshly allocated page as an empty leaf.
func (n *node) initLeaf(pageID, parentID diskio.PageID, maxSize int) {
	n.setKind(kindLeaf)
	n.setPageID(pageID)
	n.SetParentID(parentID)
	n.setSize(0)
	n.setMaxSize(maxSize)
	n.setKeySizeHeader(n.keySize)
	n.setNextPageID(diskio.InvalidPageID)
}

// initInternal formats a freshly allocated page as an empty internal node.
func (n *node) initInternal(pageID, parentID diskio.PageID, maxSize int) {
	n.setKind(kindInternal)
	n.setPageID(pageID)
	n.SetParentID(parentID)
	n.setSize(0)
	n.setMaxSize(maxSize)
	n.setKeySizeHeader(n.keySize)
}

// --- leaf entry access: slot i holds (key, RowID), entrySize = keySize+8 ---

func (n *node) leafEntrySize() int { return n.keySize + n.rowIDLen }

func (n *node) leafOffset(i int) int { return nodeHeaderSize + i*n.leafEntrySize() }

func (n *node) LeafKeyAt(i int) []byte {
	off := n.leafOffset(i)
	return n.data[off : off+n.keySize]
}

func (n *node) LeafRowIDAt(i int) record.RowID {
	off := n.leafOffset(i) + n.keySize
	page := diskio.PageID(int32(binary.LittleEndian.Uint32(n.data[off : off+4])))
	slot := binary.LittleEndian.Uint32(n.data[off+4 : off+8])
	return record.RowID{Page: page, Slot: slot}
}

func (n *node) setLeafEntry(i int, key []byte, rid record.RowID) {
	off := n.leafOffset(i)
	copy(n.data[off:off+n.keySize], key)
	binary.LittleEndian.PutUint32(n.data[off+n.keySize:off+n.keySize+4], uint32(int32(rid.Page)))
	binary.LittleEndian.PutUint32(n.data[off+n.keySize+4:off+n.keySize+8], rid.Slot)
}

// leafInsertAt shifts entries [i, size) right by one and writes (key, rid)
// at i, growing size by one.
func (n *node) leafInsertAt(i int, key []byte, rid record.RowID) {
	size := n.Size()
	for j := size; j > i; j-- {
		copy(n.data[n.leafOffset(j):n.leafOffset(j)+n.leafEntrySize()], n.data[n.leafOffset(j-1):n.leafOffset(j-1)+n.leafEntrySize()])
	}
	n.setLeafEntry(i, key, rid)
	n.setSize(size + 1)
}

// leafRemoveAt shifts entries (i, size) left by one, shrinking size by one.
func (n *node) leafRemoveAt(i int) {
	size := n.Size()
	for j := i; j < size-1; j++ {
		copy(n.data[n.leafOffset(j):n.leafOffset(j)+n.leafEntrySize()], n.data[n.leafOffset(j+1):n.leafOffset(j+1)+n.leafEntrySize()])
	}
	n.setSize(size - 1)
}

// --- internal entry access: slot i holds (key, childPageID); slot 0's key
// is a dummy, entrySize = keySize+4 ---

func (n *node) internalEntrySize() int { return n.keySize + 4 }

func (n *node) internalOffset(i int) int { return nodeHeaderSize + i*n.internalEntrySize() }

func (n *node) InternalKeyAt(i int) []byte {
	off := n.internalOffset(i)
	return n.data[off : off+n.keySize]
}

func (n *node) InternalChildAt(i int) diskio.PageID {
	off := n.internalOffset(i) + n.keySize
	return diskio.PageID(int32(binary.LittleEndian.Uint32(n.data[off : off+4])))
}

func (n *node) setInternalEntry(i int, key []byte, child diskio.PageID) {
	off := n.internalOffset(i)
	if key != nil {
		copy(n.data[off:off+n.keySize], key)
	}
	binary.LittleEndian.PutUint32(n.data[off+n.keySize:off+n.keySize+4], uint32(int32(child)))
}

// internalInsertAt shifts slots [i, size) right by one and writes (key,
// child) at i, growing size by one. i must be >= 1 (slot 0 is the dummy
// first child and is set directly via setInternalEntry(0, nil, child)).
func (n *node) internalInsertAt(i int, key []byte, child diskio.PageID) {
	size := n.Size()
	for j := size; j > i; j-- {
		copy(n.data[n.internalOffset(j):n.internalOffset(j)+n.internalEntrySize()], n.data[n.internalOffset(j-1):n.internalOffset(j-1)+n.internalEntrySize()])
	}
	n.setInternalEntry(i, key, child)
	n.setSize(size + 1)
}

// internalRemoveAt shifts slots (i, size) left by one, shrinking size by one.
func (n *node) internalRemoveAt(i int) {
	size := n.Size()
	for j := i; j < size-1; j++ {
		copy(n.data[n.internalOffset(j):n.internalOffset(j)+n.internalEntrySize()], n.data[n.internalOffset(j+1):n.internalOffset(j+1)+n.internalEntrySize()])
	}
	n.setSize(size - 1)
}

// ChildIndex returns the slot index of child among this internal node's
// children, or -1.
func (n *node) ChildIndex(child diskio.PageID) int {
	for i := 0; i < n.Size(); i++ {
		if n.InternalChildAt(i) == child {
			return i
		}
	}
	return -1
}
