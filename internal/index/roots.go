package index

import (
	"encoding/binary"
	"sync"

	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/diskio"
)

const rootsMagic uint32 = 0x800D800D

// Roots is the shared index-roots header page: a textual index id → root
// page id dictionary, rewritten in full on every update (small, infrequent
// writes; one entry per index in the database).
type Roots struct {
	mu     sync.Mutex
	pool   *buffer.Pool
	pageID diskio.PageID
}

// CreateRoots allocates a fresh, empty index-roots page.
func CreateRoots(pool *buffer.Pool) (*Roots, diskio.PageID, error) {
	pageID, data, err := pool.NewPage()
	if err != nil {
		return nil, diskio.InvalidPageID, err
	}
	binary.LittleEndian.PutUint32(data[0:4], rootsMagic)
	binary.LittleEndian.PutUint32(data[4:8], 0)
	if err := pool.Unpin(pageID, true); err != nil {
		return nil, diskio.InvalidPageID, err
	}
	return &Roots{pool: pool, pageID: pageID}, pageID, nil
}

// OpenRoots wraps an existing index-roots page.
func OpenRoots(pool *buffer.Pool, pageID diskio.PageID) *Roots {
	return &Roots{pool: pool, pageID: pageID}
}

func (r *Roots) readAllLocked() (map[string]diskio.PageID, error) {
	data, err := r.pool.Fetch(r.pageID)
	if err != nil {
		return nil, err
	}
	defer r.pool.Unpin(r.pageID, false)

	if binary.LittleEndian.Uint32(data[0:4]) != rootsMagic {
		return nil, dberr.ErrCorruption
	}
	count := binary.LittleEndian.Uint32(data[4:8])
	m := make(map[string]diskio.PageID, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		idLen := binary.LittleEndian.Uint32(data[off:])
		off += 4
		id := string(data[off : off+int(idLen)])
		off += int(idLen)
		root := diskio.PageID(int32(binary.LittleEndian.Uint32(data[off:])))
		off += 4
		m[id] = root
	}
	return m, nil
}

func (r *Roots) writeAllLocked(m map[string]diskio.PageID) error {
	data, err := r.pool.Fetch(r.pageID)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(data[0:4], rootsMagic)
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(m)))
	off := 8
	for id, root := range m {
		binary.LittleEndian.PutUint32(data[off:], uint32(len(id)))
		off += 4
		off += copy(data[off:], id)
		binary.LittleEndian.PutUint32(data[off:], uint32(int32(root)))
		off += 4
	}
	return r.pool.Unpin(r.pageID, true)
}

// Get returns indexID's root page id.
func (r *Roots) Get(indexID string) (diskio.PageID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.readAllLocked()
	if err != nil {
		return diskio.InvalidPageID, false, err
	}
	pid, ok := m[indexID]
	return pid, ok, nil
}

// Set persists indexID's root page id, overwriting any previous value.
func (r *Roots) Set(indexID string, root diskio.PageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.readAllLocked()
	if err != nil {
		return err
	}
	m[indexID] = root
	return r.writeAllLocked(m)
}

// Delete removes indexID's entry.
func (r *Roots) Delete(indexID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.readAllLocked()
	if err != nil {
		return err
	}
	delete(m, indexID)
	return r.writeAllLocked(m)
}
