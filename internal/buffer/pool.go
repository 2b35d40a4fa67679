// Package buffer implements the pinned-frame buffer pool that sits between
// the disk manager and every higher layer (record heap, B+-tree index,
// catalog). It is the only component allowed to read or write pages; every
// other package reaches disk state only through a Fetch/NewPage pin.
package buffer

import (
	"sync"

	"github.com/nainya/treestore/internal/buffer/replacer"
	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
)

// Policy selects which eviction policy newly constructed pools use.
type Policy int

const (
	LRU Policy = iota
	CLOCK
)

// frame is one in-memory slot holding a page's bytes plus its bookkeeping.
type frame struct {
	pageID   diskio.PageID
	data     [diskio.PageSize]byte
	pinCount int
	dirty    bool
}

// Pool is a fixed-capacity set of frames backed by a disk manager. Callers
// must pin (Fetch/NewPage) before touching a frame's bytes and Unpin exactly
// once per pin when done.
type Pool struct {
	mu sync.Mutex

	disk     *diskio.DiskManager
	replacer replacer.Replacer

	frames    []frame
	pageTable map[diskio.PageID]replacer.FrameID
	freeList  []replacer.FrameID

	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewPool constructs a pool of capacity frames over disk, using policy to
// pick victims among unpinned frames.
func NewPool(capacity int, disk *diskio.DiskManager, policy Policy, log *logger.Logger, m *metrics.Metrics) *Pool {
	var r replacer.Replacer
	switch policy {
	case CLOCK:
		r = replacer.NewCLOCK(capacity)
	default:
		r = replacer.NewLRU(capacity)
	}

	free := make([]replacer.FrameID, capacity)
	for i := range free {
		free[i] = replacer.FrameID(i)
	}

	return &Pool{
		disk:      disk,
		replacer:  r,
		frames:    make([]frame, capacity),
		pageTable: make(map[diskio.PageID]replacer.FrameID, capacity),
		freeList:  free,
		log:       log.Component("buffer"),
		metrics:   m,
	}
}

// victimLocked finds a frame to reuse: free list first, else ask the
// replacer, flushing the evicted frame if dirty. Returns ok=false if every
// frame is pinned.
func (p *Pool) victimLocked() (replacer.FrameID, bool, error) {
	if n := len(p.freeList); n > 0 {
		fid := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return fid, true, nil
	}

	fid, ok := p.replacer.Victim()
	if !ok {
		return 0, false, nil
	}

	f := &p.frames[fid]
	if f.dirty {
		if err := p.disk.WritePage(f.pageID, f.data[:]); err != nil {
			return 0, false, err
		}
	}
	p.log.LogEviction(int(fid), int32(f.pageID), f.dirty)
	if p.metrics != nil {
		p.metrics.BufferEvictionsTotal.Inc()
	}
	delete(p.pageTable, f.pageID)
	return fid, true, nil
}

// Fetch pins and returns the bytes of pageID, reading it from disk on a
// miss. The returned slice aliases the frame; callers must not retain it
// past Unpin.
func (p *Pool) Fetch(pageID diskio.PageID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTable[pageID]; ok {
		f := &p.frames[fid]
		if f.pinCount == 0 {
			p.replacer.Pin(fid)
		}
		f.pinCount++
		if p.metrics != nil {
			p.metrics.BufferHitsTotal.Inc()
			p.metrics.BufferPinnedGauge.Inc()
		}
		return f.data[:], nil
	}

	fid, ok, err := p.victimLocked()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberr.ErrOutOfMemory
	}

	f := &p.frames[fid]
	if err := p.disk.ReadPage(pageID, f.data[:]); err != nil {
		p.freeList = append(p.freeList, fid)
		return nil, err
	}
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false
	p.pageTable[pageID] = fid
	p.replacer.Pin(fid)

	if p.metrics != nil {
		p.metrics.BufferMissesTotal.Inc()
		p.metrics.BufferPinnedGauge.Inc()
	}
	return f.data[:], nil
}

// NewPage allocates a fresh logical page on disk and pins its zeroed frame.
func (p *Pool) NewPage() (diskio.PageID, []byte, error) {
	pageID, err := p.disk.Allocate()
	if err != nil {
		return diskio.InvalidPageID, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok, err := p.victimLocked()
	if err != nil {
		return diskio.InvalidPageID, nil, err
	}
	if !ok {
		_ = p.disk.Deallocate(pageID)
		return diskio.InvalidPageID, nil, dberr.ErrOutOfMemory
	}

	f := &p.frames[fid]
	for i := range f.data {
		f.data[i] = 0
	}
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = true
	p.pageTable[pageID] = fid
	p.replacer.Pin(fid)

	if p.metrics != nil {
		p.metrics.BufferPinnedGauge.Inc()
	}
	return pageID, f.data[:], nil
}

// Unpin releases one pin on pageID. isDirty, once true for a given pin
// cycle, keeps the frame marked dirty even if a later Unpin in the same
// cycle passes false.
func (p *Pool) Unpin(pageID diskio.PageID, isDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[pageID]
	if !ok {
		return dberr.ErrInvalidPageID
	}
	f := &p.frames[fid]
	if f.pinCount == 0 {
		return nil
	}
	if isDirty {
		f.dirty = true
	}
	f.pinCount--
	if p.metrics != nil {
		p.metrics.BufferPinnedGauge.Dec()
	}
	if f.pinCount == 0 {
		p.replacer.Unpin(fid)
	}
	return nil
}

// Delete removes pageID from the pool and frees it on disk. Fails if the
// page is currently pinned.
func (p *Pool) Delete(pageID diskio.PageID) error {
	p.mu.Lock()
	fid, ok := p.pageTable[pageID]
	if !ok {
		p.mu.Unlock()
		return p.disk.Deallocate(pageID)
	}
	if p.frames[fid].pinCount > 0 {
		p.mu.Unlock()
		return dberr.New(dberr.Failed, "buffer.Delete", nil)
	}
	p.replacer.Pin(fid) // remove from candidacy before reuse
	delete(p.pageTable, pageID)
	p.freeList = append(p.freeList, fid)
	p.mu.Unlock()

	return p.disk.Deallocate(pageID)
}

// Flush writes pageID's frame to disk if resident, regardless of pin state.
func (p *Pool) Flush(pageID diskio.PageID) error {
	p.mu.Lock()
	fid, ok := p.pageTable[pageID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	f := &p.frames[fid]
	data := f.data
	f.dirty = false
	p.mu.Unlock()

	return p.disk.WritePage(pageID, data[:])
}

// FlushAll writes every resident frame to disk, dirty or not.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	ids := make([]diskio.PageID, 0, len(p.pageTable))
	for id := range p.pageTable {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.Flush(id); err != nil {
			return err
		}
	}
	return nil
}

// CheckAllUnpinned is a debug/test helper reporting whether every resident
// frame has a zero pin count.
func (p *Pool) CheckAllUnpinned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fid := range p.pageTable {
		if p.frames[fid].pinCount > 0 {
			return false
		}
	}
	return true
}
