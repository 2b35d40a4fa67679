// Package catalog persists table and index metadata on the database
// file's first two logical pages and rebuilds heaps and indexes on
// reopen, per the catalog meta page / index-roots header page split.
package catalog

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/heap"
	"github.com/nainya/treestore/internal/index"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
	"github.com/nainya/treestore/internal/record"
)

const catalogMagic uint32 = 0xCAFEBABE

// CatalogMetaPageID and RootsPageID are fixed: the catalog meta page is
// always the first page ever allocated in a fresh database file, and the
// index-roots header page is always the second.
const CatalogMetaPageID diskio.PageID = 0
const RootsPageID diskio.PageID = 1

// DefaultBTreeMaxSize bounds leaf/internal node fan-out for every index
// the catalog opens or creates.
const DefaultBTreeMaxSize = 64

// TableInfo pairs a table's durable metadata with its open heap.
type TableInfo struct {
	Meta *TableMetadata
	Heap *heap.TableHeap
}

// IndexInfo pairs an index's durable metadata with its open tree.
type IndexInfo struct {
	Meta *IndexMetadata
	Tree *index.BTree
}

// Catalog owns every table and index definition in one database file.
type Catalog struct {
	mu    sync.Mutex
	pool  *buffer.Pool
	roots *index.Roots

	tables        map[uint32]*TableInfo
	tableMetaPID  map[uint32]diskio.PageID
	tableIDByName map[string]uint32

	indexes       map[uint32]*IndexInfo
	indexMetaPID  map[uint32]diskio.PageID
	indexIDByName map[string]uint32
	tableIndexes  map[uint32][]uint32

	nextTableID  uint32
	nextIndexID  uint32
	btreeMaxSize int

	log     *logger.Logger
	metrics *metrics.Metrics
}

func newCatalog(pool *buffer.Pool, roots *index.Roots, log *logger.Logger, m *metrics.Metrics) *Catalog {
	return &Catalog{
		pool:          pool,
		roots:         roots,
		tables:        make(map[uint32]*TableInfo),
		tableMetaPID:  make(map[uint32]diskio.PageID),
		tableIDByName: make(map[string]uint32),
		indexes:       make(map[uint32]*IndexInfo),
		indexMetaPID:  make(map[uint32]diskio.PageID),
		indexIDByName: make(map[string]uint32),
		tableIndexes:  make(map[uint32][]uint32),
		nextTableID:   1,
		nextIndexID:   1,
		btreeMaxSize:  DefaultBTreeMaxSize,
		log:           log.Component("catalog"),
		metrics:       m,
	}
}

// CreateCatalog initializes a fresh catalog meta page and index-roots
// page on a newly opened (empty) database file.
func CreateCatalog(pool *buffer.Pool, log *logger.Logger, m *metrics.Metrics) (*Catalog, error) {
	metaPID, data, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	if metaPID != CatalogMetaPageID {
		pool.Unpin(metaPID, false)
		return nil, fmt.Errorf("%w: catalog meta page landed at %s, want page 0 (database file not empty)", dberr.ErrCorruption, metaPID)
	}
	binary.LittleEndian.PutUint32(data[0:4], catalogMagic)
	binary.LittleEndian.PutUint32(data[4:8], 0)
	binary.LittleEndian.PutUint32(data[8:12], 0)
	if err := pool.Unpin(metaPID, true); err != nil {
		return nil, err
	}

	roots, rootsPID, err := index.CreateRoots(pool)
	if err != nil {
		return nil, err
	}
	if rootsPID != RootsPageID {
		return nil, fmt.Errorf("%w: index-roots page landed at %s, want page 1", dberr.ErrCorruption, rootsPID)
	}

	return newCatalog(pool, roots, log, m), nil
}

// OpenCatalog reloads an existing catalog by reading the meta page and
// reconstructing every table heap and index tree from persisted metadata.
func OpenCatalog(pool *buffer.Pool, log *logger.Logger, m *metrics.Metrics) (*Catalog, error) {
	data, err := pool.Fetch(CatalogMetaPageID)
	if err != nil {
		return nil, err
	}
	defer pool.Unpin(CatalogMetaPageID, false)

	if binary.LittleEndian.Uint32(data[0:4]) != catalogMagic {
		return nil, dberr.ErrCorruption
	}
	tableCount := binary.LittleEndian.Uint32(data[4:8])
	indexCount := binary.LittleEndian.Uint32(data[8:12])

	off := 12
	tableMetaPID := make(map[uint32]diskio.PageID, tableCount)
	for i := uint32(0); i < tableCount; i++ {
		id := binary.LittleEndian.Uint32(data[off:])
		off += 4
		pid := diskio.PageID(int32(binary.LittleEndian.Uint32(data[off:])))
		off += 4
		tableMetaPID[id] = pid
	}
	indexMetaPID := make(map[uint32]diskio.PageID, indexCount)
	for i := uint32(0); i < indexCount; i++ {
		id := binary.LittleEndian.Uint32(data[off:])
		off += 4
		pid := diskio.PageID(int32(binary.LittleEndian.Uint32(data[off:])))
		off += 4
		indexMetaPID[id] = pid
	}

	roots := index.OpenRoots(pool, RootsPageID)
	cat := newCatalog(pool, roots, log, m)

	for id, pid := range tableMetaPID {
		meta, err := cat.readTableMetaLocked(pid)
		if err != nil {
			return nil, err
		}
		h := heap.OpenTableHeap(pool, meta.FirstPageID, meta.Schema, log, m)
		cat.tables[id] = &TableInfo{Meta: meta, Heap: h}
		cat.tableMetaPID[id] = pid
		cat.tableIDByName[meta.Name] = id
		if id >= cat.nextTableID {
			cat.nextTableID = id + 1
		}
	}
	for id, pid := range indexMetaPID {
		meta, err := cat.readIndexMetaLocked(pid)
		if err != nil {
			return nil, err
		}
		tree, err := index.OpenBTree(meta.Name, meta.KeySchema, cat.btreeMaxSize, pool, roots, log, m)
		if err != nil {
			return nil, err
		}
		cat.indexes[id] = &IndexInfo{Meta: meta, Tree: tree}
		cat.indexMetaPID[id] = pid
		cat.indexIDByName[meta.Name] = id
		tableID := cat.tableIDByName[meta.TableName]
		cat.tableIndexes[tableID] = append(cat.tableIndexes[tableID], id)
		if id >= cat.nextIndexID {
			cat.nextIndexID = id + 1
		}
	}

	if m != nil {
		m.CatalogTablesGauge.Set(float64(len(cat.tables)))
		m.CatalogIndexesGauge.Set(float64(len(cat.indexes)))
	}
	return cat, nil
}

func (c *Catalog) readTableMetaLocked(pid diskio.PageID) (*TableMetadata, error) {
	data, err := c.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	defer c.pool.Unpin(pid, false)
	return DeserializeTableMetadata(data)
}

func (c *Catalog) readIndexMetaLocked(pid diskio.PageID) (*IndexMetadata, error) {
	data, err := c.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	defer c.pool.Unpin(pid, false)
	return DeserializeIndexMetadata(data)
}

// flushMetaLocked rewrites the catalog meta page in full from the current
// id -> meta-page-id maps, mirroring the index-roots full-rewrite pattern.
func (c *Catalog) flushMetaLocked() error {
	data, err := c.pool.Fetch(CatalogMetaPageID)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(data[0:4], catalogMagic)
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(c.tableMetaPID)))
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(c.indexMetaPID)))
	off := 12

	tableIDs := make([]uint32, 0, len(c.tableMetaPID))
	for id := range c.tableMetaPID {
		tableIDs = append(tableIDs, id)
	}
	sort.Slice(tableIDs, func(i, j int) bool { return tableIDs[i] < tableIDs[j] })
	for _, id := range tableIDs {
		binary.LittleEndian.PutUint32(data[off:], id)
		off += 4
		binary.LittleEndian.PutUint32(data[off:], uint32(int32(c.tableMetaPID[id])))
		off += 4
	}

	indexIDs := make([]uint32, 0, len(c.indexMetaPID))
	for id := range c.indexMetaPID {
		indexIDs = append(indexIDs, id)
	}
	sort.Slice(indexIDs, func(i, j int) bool { return indexIDs[i] < indexIDs[j] })
	for _, id := range indexIDs {
		binary.LittleEndian.PutUint32(data[off:], id)
		off += 4
		binary.LittleEndian.PutUint32(data[off:], uint32(int32(c.indexMetaPID[id])))
		off += 4
	}

	return c.pool.Unpin(CatalogMetaPageID, true)
}

func (c *Catalog) writeTableMetaLocked(pid diskio.PageID, meta *TableMetadata) error {
	data, err := c.pool.Fetch(pid)
	if err != nil {
		return err
	}
	meta.Serialize(data)
	return c.pool.Unpin(pid, true)
}

func (c *Catalog) writeIndexMetaLocked(pid diskio.PageID, meta *IndexMetadata) error {
	data, err := c.pool.Fetch(pid)
	if err != nil {
		return err
	}
	meta.Serialize(data)
	return c.pool.Unpin(pid, true)
}

// CreateTable allocates a new table, its heap, and a single-column unique
// index for every column marked Unique in schema.
func (c *Catalog) CreateTable(name string, schema *record.Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tableIDByName[name]; exists {
		return nil, dberr.New(dberr.TableAlreadyExist, "Catalog.CreateTable", fmt.Errorf("table %q", name))
	}

	tableID := c.nextTableID
	c.nextTableID++

	metaPID, _, err := c.pool.NewPage()
	if err != nil {
		return nil, err
	}
	if err := c.pool.Unpin(metaPID, true); err != nil {
		return nil, err
	}

	h, err := heap.NewTableHeap(c.pool, schema, c.log, c.metrics)
	if err != nil {
		return nil, err
	}

	meta := &TableMetadata{TableID: tableID, Name: name, Schema: schema, FirstPageID: h.FirstPageID}
	if err := c.writeTableMetaLocked(metaPID, meta); err != nil {
		return nil, err
	}

	info := &TableInfo{Meta: meta, Heap: h}
	c.tables[tableID] = info
	c.tableMetaPID[tableID] = metaPID
	c.tableIDByName[name] = tableID

	if err := c.flushMetaLocked(); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.CatalogTablesGauge.Set(float64(len(c.tables)))
	}

	for _, col := range schema.Columns {
		if !col.Unique {
			continue
		}
		idxName := fmt.Sprintf("%s_%s_uqidx", name, col.Name)
		if _, _, err := c.createIndexLocked(idxName, name, []string{col.Name}); err != nil {
			return nil, err
		}
	}

	return info, nil
}

// CreateIndex creates a multi-column index over table and bulk-loads it by
// scanning every existing tuple, returning the number of rows loaded.
func (c *Catalog) CreateIndex(tableName, indexName string, columns []string) (*IndexInfo, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createIndexLocked(indexName, tableName, columns)
}

func (c *Catalog) createIndexLocked(indexName, tableName string, columns []string) (*IndexInfo, int, error) {
	if _, exists := c.indexIDByName[indexName]; exists {
		return nil, 0, dberr.New(dberr.IndexAlreadyExist, "Catalog.CreateIndex", fmt.Errorf("index %q", indexName))
	}
	tableID, ok := c.tableIDByName[tableName]
	if !ok {
		return nil, 0, dberr.New(dberr.TableNotExist, "Catalog.CreateIndex", fmt.Errorf("table %q", tableName))
	}
	tableInfo := c.tables[tableID]

	keySchema, err := tableInfo.Meta.Schema.Project(columns)
	if err != nil {
		return nil, 0, err
	}

	indexID := c.nextIndexID
	c.nextIndexID++

	metaPID, _, err := c.pool.NewPage()
	if err != nil {
		return nil, 0, err
	}
	if err := c.pool.Unpin(metaPID, true); err != nil {
		return nil, 0, err
	}

	tree, err := index.OpenBTree(indexName, keySchema, c.btreeMaxSize, c.pool, c.roots, c.log, c.metrics)
	if err != nil {
		return nil, 0, err
	}

	it, err := tableInfo.Heap.Begin()
	if err != nil {
		return nil, 0, err
	}
	rowsLoaded := 0
	for it.Valid() {
		row := it.Row()
		keyRow, err := row.ProjectKey(tableInfo.Meta.Schema, keySchema)
		if err != nil {
			return nil, 0, err
		}
		key := index.EncodeKey(keyRow, keySchema)
		if err := tree.Insert(key, row.ID); err != nil {
			return nil, 0, err
		}
		rowsLoaded++
		if err := it.Next(); err != nil {
			return nil, 0, err
		}
	}

	meta := &IndexMetadata{IndexID: indexID, Name: indexName, TableName: tableName, KeySchema: keySchema, Type: BPlusTree}
	if err := c.writeIndexMetaLocked(metaPID, meta); err != nil {
		return nil, 0, err
	}

	info := &IndexInfo{Meta: meta, Tree: tree}
	c.indexes[indexID] = info
	c.indexMetaPID[indexID] = metaPID
	c.indexIDByName[indexName] = indexID
	c.tableIndexes[tableID] = append(c.tableIndexes[tableID], indexID)

	if err := c.flushMetaLocked(); err != nil {
		return nil, 0, err
	}
	if c.metrics != nil {
		c.metrics.CatalogIndexesGauge.Set(float64(len(c.indexes)))
	}
	return info, rowsLoaded, nil
}

// DropTable removes every index on table, frees its heap pages and meta
// page, and removes it from the catalog.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableID, ok := c.tableIDByName[name]
	if !ok {
		return dberr.New(dberr.TableNotExist, "Catalog.DropTable", fmt.Errorf("table %q", name))
	}

	for _, idxID := range append([]uint32(nil), c.tableIndexes[tableID]...) {
		if err := c.dropIndexByIDLocked(idxID); err != nil {
			return err
		}
	}

	info := c.tables[tableID]
	pid := info.Heap.FirstPageID
	for pid != diskio.InvalidPageID {
		data, err := c.pool.Fetch(pid)
		if err != nil {
			return err
		}
		next := heap.NextPageIDOf(data)
		if err := c.pool.Unpin(pid, false); err != nil {
			return err
		}
		if err := c.pool.Delete(pid); err != nil {
			return err
		}
		pid = next
	}

	metaPID := c.tableMetaPID[tableID]
	if err := c.pool.Delete(metaPID); err != nil {
		return err
	}

	delete(c.tables, tableID)
	delete(c.tableMetaPID, tableID)
	delete(c.tableIDByName, name)
	delete(c.tableIndexes, tableID)

	if err := c.flushMetaLocked(); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.CatalogTablesGauge.Set(float64(len(c.tables)))
	}
	return nil
}

// DropIndex removes indexName.
func (c *Catalog) DropIndex(indexName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	indexID, ok := c.indexIDByName[indexName]
	if !ok {
		return dberr.New(dberr.IndexNotFound, "Catalog.DropIndex", fmt.Errorf("index %q", indexName))
	}
	if err := c.dropIndexByIDLocked(indexID); err != nil {
		return err
	}
	if err := c.flushMetaLocked(); err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.CatalogIndexesGauge.Set(float64(len(c.indexes)))
	}
	return nil
}

func (c *Catalog) dropIndexByIDLocked(indexID uint32) error {
	info := c.indexes[indexID]
	if info == nil {
		return dberr.New(dberr.IndexNotFound, "Catalog.dropIndexByIDLocked", nil)
	}
	if err := c.roots.Delete(info.Meta.Name); err != nil {
		return err
	}
	metaPID := c.indexMetaPID[indexID]
	if err := c.pool.Delete(metaPID); err != nil {
		return err
	}

	tableID := c.tableIDByName[info.Meta.TableName]
	ids := c.tableIndexes[tableID]
	for i, id := range ids {
		if id == indexID {
			c.tableIndexes[tableID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	delete(c.indexes, indexID)
	delete(c.indexMetaPID, indexID)
	delete(c.indexIDByName, info.Meta.Name)
	return nil
}

// GetTable returns the named table's info.
func (c *Catalog) GetTable(name string) (*TableInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.tableIDByName[name]
	if !ok {
		return nil, false
	}
	return c.tables[id], true
}

// GetIndex returns the named index's info.
func (c *Catalog) GetIndex(name string) (*IndexInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.indexIDByName[name]
	if !ok {
		return nil, false
	}
	return c.indexes[id], true
}

// GetTables returns every table name currently registered, sorted.
func (c *Catalog) GetTables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tableIDByName))
	for name := range c.tableIDByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTableIndexes returns the names of every index defined on table.
func (c *Catalog) GetTableIndexes(table string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	tableID, ok := c.tableIDByName[table]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(c.tableIndexes[tableID]))
	for _, id := range c.tableIndexes[tableID] {
		names = append(names, c.indexes[id].Meta.Name)
	}
	sort.Strings(names)
	return names
}
