package diskio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
)

// An extent is one bitmap page followed by BitsPerBitmapPage data pages.
// Physical block 0 is the disk meta block; extents start at block 1.
//
//	phys(logical) = logical + floor(logical / BitsPerBitmapPage) + 2
const blocksPerExtent = 1 + BitsPerBitmapPage

// maxExtents bounds how many per-extent usage counters fit in the meta
// block; this is the engine's DatabaseFull ceiling.
const maxExtents = (PageSize - 8) / 4

// DiskManager maps logical page ids to physical file offsets and allocates
// or frees data pages through per-extent bitmaps, per spec §4.1.
type DiskManager struct {
	mu   sync.Mutex
	file *os.File

	totalAllocated uint32
	extentUsed     []uint32 // used-slot count per extent, parallel to extents on disk

	log     *logger.Logger
	metrics *metrics.Metrics
}

// Open opens or creates the database file at path and loads its disk meta
// block (physical block 0), distinct from the catalog meta page (logical
// page 0).
func Open(path string, log *logger.Logger, m *metrics.Metrics) (*DiskManager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diskio: open %s: %w", path, err)
	}

	dm := &DiskManager{file: f, log: log.Component("disk"), metrics: m}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		dm.extentUsed = make([]uint32, 0, 1)
		if err := dm.writeMetaLocked(); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := dm.readMetaLocked(); err != nil {
		f.Close()
		return nil, err
	}

	return dm, nil
}

func (dm *DiskManager) readMetaLocked() error {
	buf := make([]byte, PageSize)
	if _, err := dm.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("diskio: read meta block: %w", err)
	}
	dm.totalAllocated = binary.LittleEndian.Uint32(buf[0:4])
	extentCount := binary.LittleEndian.Uint32(buf[4:8])
	dm.extentUsed = make([]uint32, extentCount)
	for i := uint32(0); i < extentCount; i++ {
		off := 8 + i*4
		dm.extentUsed[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return nil
}

func (dm *DiskManager) writeMetaLocked() error {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(buf[0:4], dm.totalAllocated)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(dm.extentUsed)))
	for i, used := range dm.extentUsed {
		off := 8 + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], used)
	}
	if _, err := dm.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("diskio: write meta block: %w", err)
	}
	return nil
}

func physicalBlock(lid PageID) int64 {
	l := int64(lid)
	return l + l/int64(BitsPerBitmapPage) + 2
}

func bitmapBlockForExtent(extent int) int64 {
	return 1 + int64(extent)*int64(blocksPerExtent)
}

func (dm *DiskManager) readBitmap(extent int) (*BitmapPage, error) {
	buf := make([]byte, PageSize)
	off := bitmapBlockForExtent(extent) * PageSize
	if _, err := dm.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("%w: read bitmap extent %d: %v", dberr.ErrIOError, extent, err)
	}
	return NewBitmapPage(buf), nil
}

func (dm *DiskManager) writeBitmap(extent int, bp *BitmapPage) error {
	off := bitmapBlockForExtent(extent) * PageSize
	if _, err := dm.file.WriteAt(bp.data, off); err != nil {
		return fmt.Errorf("%w: write bitmap extent %d: %v", dberr.ErrIOError, extent, err)
	}
	return nil
}

// Allocate finds the first extent with free capacity (creating a new one if
// every existing extent is full), allocates a bit in it, and persists the
// bitmap and meta blocks. Returns dberr.ErrDiskFull once the configured
// extent ceiling is reached.
func (dm *DiskManager) Allocate() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	extent := -1
	for i, used := range dm.extentUsed {
		if used < BitsPerBitmapPage {
			extent = i
			break
		}
	}

	var bp *BitmapPage
	if extent == -1 {
		if len(dm.extentUsed) >= maxExtents {
			return InvalidPageID, dberr.ErrDiskFull
		}
		extent = len(dm.extentUsed)
		dm.extentUsed = append(dm.extentUsed, 0)
		bp = NewBitmapPage(make([]byte, PageSize))
	} else {
		var err error
		bp, err = dm.readBitmap(extent)
		if err != nil {
			return InvalidPageID, err
		}
	}

	bit, ok := bp.Allocate()
	if !ok {
		// Stale used-count bookkeeping; try the next extent on a future call.
		dm.extentUsed[extent] = BitsPerBitmapPage
		return InvalidPageID, fmt.Errorf("%w: extent %d reported free capacity but has none", dberr.ErrIOError, extent)
	}

	if err := dm.writeBitmap(extent, bp); err != nil {
		return InvalidPageID, err
	}

	dm.extentUsed[extent]++
	dm.totalAllocated++
	if err := dm.writeMetaLocked(); err != nil {
		return InvalidPageID, err
	}

	lid := PageID(extent*BitsPerBitmapPage + int(bit))
	if dm.metrics != nil {
		dm.metrics.DiskPagesAllocated.Set(float64(dm.totalAllocated))
	}
	dm.log.Debug("allocated page").Int32("page_id", int32(lid)).Send()
	return lid, nil
}

// Deallocate clears lid's bit in its extent and persists the change.
func (dm *DiskManager) Deallocate(lid PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	extent, bit := dm.locate(lid)
	if extent < 0 || extent >= len(dm.extentUsed) {
		return dberr.ErrInvalidPageID
	}

	bp, err := dm.readBitmap(extent)
	if err != nil {
		return err
	}
	if !bp.Deallocate(bit) {
		return nil // already free
	}
	if err := dm.writeBitmap(extent, bp); err != nil {
		return err
	}
	dm.extentUsed[extent]--
	dm.totalAllocated--
	return dm.writeMetaLocked()
}

// IsFree returns the bitmap state for lid without mutating counters.
func (dm *DiskManager) IsFree(lid PageID) (bool, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	extent, bit := dm.locate(lid)
	if extent < 0 || extent >= len(dm.extentUsed) {
		return true, nil
	}
	bp, err := dm.readBitmap(extent)
	if err != nil {
		return false, err
	}
	return bp.IsFree(bit), nil
}

func (dm *DiskManager) locate(lid PageID) (extent int, bit uint32) {
	l := int64(lid)
	return int(l / int64(BitsPerBitmapPage)), uint32(l % int64(BitsPerBitmapPage))
}

// ReadPage reads PageSize bytes at lid's physical offset into buf. Reads
// past EOF zero-fill buf rather than erroring, matching a freshly allocated
// but never-written page.
func (dm *DiskManager) ReadPage(lid PageID, buf []byte) error {
	if lid < 0 {
		return dberr.ErrInvalidPageID
	}
	if len(buf) != PageSize {
		panic("diskio: ReadPage buffer must be exactly PageSize")
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	off := physicalBlock(lid) * PageSize
	n, err := dm.file.ReadAt(buf, off)
	if n < PageSize {
		for i := n; i < PageSize; i++ {
			buf[i] = 0
		}
	}
	if err != nil && n == 0 {
		// Treat a wholly-absent page as a zero page; anything else is an I/O error.
		info, statErr := dm.file.Stat()
		if statErr == nil && off >= info.Size() {
			return nil
		}
		return fmt.Errorf("%w: read page %d: %v", dberr.ErrIOError, lid, err)
	}
	if dm.metrics != nil {
		dm.metrics.DiskPageReadsTotal.Inc()
	}
	return nil
}

// WritePage writes buf (exactly PageSize bytes) at lid's physical offset.
func (dm *DiskManager) WritePage(lid PageID, buf []byte) error {
	if lid < 0 {
		return dberr.ErrInvalidPageID
	}
	if len(buf) != PageSize {
		panic("diskio: WritePage buffer must be exactly PageSize")
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	off := physicalBlock(lid) * PageSize
	if _, err := dm.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("%w: write page %d: %v", dberr.ErrIOError, lid, err)
	}
	if dm.metrics != nil {
		dm.metrics.DiskPageWritesTotal.Inc()
		dm.metrics.DiskBytesWrittenTotal.Add(float64(PageSize))
	}
	return nil
}

// Close flushes nothing on its own (callers flush the buffer pool first)
// and closes the underlying file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.file.Close()
}
