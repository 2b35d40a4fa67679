// ABOUTME: Tests for the table/index catalog
// ABOUTME: Covers create/drop, automatic unique indexes, bulk load, and reopen-and-reload

package catalog

import (
	"path/filepath"
	"testing"

	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/index"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/record"
)

func openTestPool(t *testing.T, path string) *buffer.Pool {
	t.Helper()
	log := logger.NewLogger(logger.Config{Level: "error"})
	dm, err := diskio.Open(path, log, nil)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return buffer.NewPool(64, dm, buffer.LRU, log, nil)
}

func testSchema() *record.Schema {
	return record.NewSchema([]record.Column{
		{Name: "id", Type: record.TypeInt32, Unique: true},
		{Name: "name", Type: record.TypeChar, Length: 16},
	})
}

func TestCreateTableCreatesUniqueIndex(t *testing.T) {
	dir := t.TempDir()
	pool := openTestPool(t, filepath.Join(dir, "cat.db"))
	log := logger.NewLogger(logger.Config{Level: "error"})

	cat, err := CreateCatalog(pool, log, nil)
	if err != nil {
		t.Fatalf("CreateCatalog: %v", err)
	}

	if _, err := cat.CreateTable("users", testSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if _, ok := cat.GetIndex("users_id_uqidx"); !ok {
		t.Fatal("automatic unique index users_id_uqidx was not created")
	}
	idxNames := cat.GetTableIndexes("users")
	if len(idxNames) != 1 || idxNames[0] != "users_id_uqidx" {
		t.Fatalf("GetTableIndexes = %v, want [users_id_uqidx]", idxNames)
	}
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	pool := openTestPool(t, filepath.Join(dir, "cat.db"))
	log := logger.NewLogger(logger.Config{Level: "error"})
	cat, err := CreateCatalog(pool, log, nil)
	if err != nil {
		t.Fatalf("CreateCatalog: %v", err)
	}
	if _, err := cat.CreateTable("users", testSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateTable("users", testSchema()); err == nil {
		t.Fatal("CreateTable duplicate name succeeded, want error")
	}
}

func TestCreateIndexBulkLoadsExistingRows(t *testing.T) {
	dir := t.TempDir()
	pool := openTestPool(t, filepath.Join(dir, "cat.db"))
	log := logger.NewLogger(logger.Config{Level: "error"})
	cat, err := CreateCatalog(pool, log, nil)
	if err != nil {
		t.Fatalf("CreateCatalog: %v", err)
	}

	schema := record.NewSchema([]record.Column{
		{Name: "id", Type: record.TypeInt32},
		{Name: "age", Type: record.TypeInt32},
	})
	info, err := cat.CreateTable("people", schema)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	for i := int32(0); i < 10; i++ {
		row := &record.Row{Fields: []record.Field{record.NewInt32Field(i), record.NewInt32Field(i * 2)}}
		if err := info.Heap.InsertTuple(row); err != nil {
			t.Fatalf("InsertTuple(%d): %v", i, err)
		}
	}

	idxInfo, rowsLoaded, err := cat.CreateIndex("people", "people_age_idx", []string{"age"})
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if rowsLoaded != 10 {
		t.Fatalf("CreateIndex rowsLoaded = %d, want 10", rowsLoaded)
	}

	key := index.EncodeKey(&record.Row{Fields: []record.Field{record.NewInt32Field(6)}}, idxInfo.Meta.KeySchema)
	rid, ok, err := idxInfo.Tree.Search(key)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !ok {
		t.Fatal("bulk-loaded index missing a key present before CreateIndex")
	}
	_ = rid
}

func TestDropTableRemovesItsIndexes(t *testing.T) {
	dir := t.TempDir()
	pool := openTestPool(t, filepath.Join(dir, "cat.db"))
	log := logger.NewLogger(logger.Config{Level: "error"})
	cat, err := CreateCatalog(pool, log, nil)
	if err != nil {
		t.Fatalf("CreateCatalog: %v", err)
	}
	if _, err := cat.CreateTable("users", testSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := cat.DropTable("users"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if _, ok := cat.GetTable("users"); ok {
		t.Fatal("table still present after DropTable")
	}
	if _, ok := cat.GetIndex("users_id_uqidx"); ok {
		t.Fatal("automatic unique index survived DropTable")
	}
}

func TestCatalogReloadsOnReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cat.db")
	log := logger.NewLogger(logger.Config{Level: "error"})

	func() {
		pool := openTestPool(t, dbPath)
		cat, err := CreateCatalog(pool, log, nil)
		if err != nil {
			t.Fatalf("CreateCatalog: %v", err)
		}
		info, err := cat.CreateTable("users", testSchema())
		if err != nil {
			t.Fatalf("CreateTable: %v", err)
		}
		row := &record.Row{Fields: []record.Field{record.NewInt32Field(1), record.NewCharField("alice")}}
		if err := info.Heap.InsertTuple(row); err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
		if err := pool.FlushAll(); err != nil {
			t.Fatalf("FlushAll: %v", err)
		}
	}()

	dm, err := diskio.Open(dbPath, log, nil)
	if err != nil {
		t.Fatalf("reopen diskio.Open: %v", err)
	}
	defer dm.Close()
	pool := buffer.NewPool(64, dm, buffer.LRU, log, nil)

	cat, err := OpenCatalog(pool, log, nil)
	if err != nil {
		t.Fatalf("OpenCatalog: %v", err)
	}

	info, ok := cat.GetTable("users")
	if !ok {
		t.Fatal("users table missing after reopen")
	}
	it, err := info.Heap.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !it.Valid() {
		t.Fatal("reloaded heap has no rows")
	}
	if it.Row().Fields[0].I32 != 1 {
		t.Fatalf("reloaded row id field = %d, want 1", it.Row().Fields[0].I32)
	}

	if _, ok := cat.GetIndex("users_id_uqidx"); !ok {
		t.Fatal("automatic unique index missing after reopen")
	}
}
