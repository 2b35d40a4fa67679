package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nainya/treestore/internal/buffer"
	"github.com/nainya/treestore/internal/catalog"
	"github.com/nainya/treestore/internal/config"
	"github.com/nainya/treestore/internal/diskio"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
	"github.com/nainya/treestore/internal/recovery"
	"github.com/nainya/treestore/internal/txn"
)

// database bundles every per-database subsystem the engine needs open at
// once: the disk/buffer layer, the catalog sitting on top of it, the lock
// manager serializing access to its rows, and an in-memory recovery log
// tracking its write history.
type database struct {
	name string
	path string

	disk         *diskio.DiskManager
	pool         *buffer.Pool
	catalog      *catalog.Catalog
	locks        *txn.LockManager
	log          *recovery.Manager
	checkpointer *recovery.Checkpointer
}

func databasePath(dataDir, name string) string {
	return filepath.Join(dataDir, name+".db")
}

// createDatabase makes a brand-new database file under cfg.DataDir.
func createDatabase(cfg config.Config, name string, lg *logger.Logger, m *metrics.Metrics) (*database, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: creating data directory: %w", err)
	}
	path := databasePath(cfg.DataDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("engine: database %q already exists", name)
	}

	disk, err := diskio.Open(path, lg, m)
	if err != nil {
		return nil, fmt.Errorf("engine: opening database file: %w", err)
	}
	pool := buffer.NewPool(cfg.BufferPoolFrames, disk, cfg.ReplacerPolicy.ToPolicy(), lg, m)
	cat, err := catalog.CreateCatalog(pool, lg, m)
	if err != nil {
		disk.Close()
		return nil, err
	}

	tickInterval := cfg.LockWaitTickInterval()
	rlog := recovery.NewManager(lg, m)
	return &database{
		name:         name,
		path:         path,
		disk:         disk,
		pool:         pool,
		catalog:      cat,
		locks:        txn.NewLockManager(tickInterval, lg, m),
		log:          rlog,
		checkpointer: recovery.NewCheckpointer(rlog, cfg.CheckpointInterval(), lg),
	}, nil
}

// openDatabase reopens an existing database file, rebuilding its catalog
// (and therefore every table's heap and every index's B+-tree) from what
// is already on disk.
func openDatabase(cfg config.Config, name string, lg *logger.Logger, m *metrics.Metrics) (*database, error) {
	path := databasePath(cfg.DataDir, name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("engine: database %q does not exist", name)
	}

	disk, err := diskio.Open(path, lg, m)
	if err != nil {
		return nil, fmt.Errorf("engine: opening database file: %w", err)
	}
	pool := buffer.NewPool(cfg.BufferPoolFrames, disk, cfg.ReplacerPolicy.ToPolicy(), lg, m)
	cat, err := catalog.OpenCatalog(pool, lg, m)
	if err != nil {
		disk.Close()
		return nil, err
	}

	tickInterval := cfg.LockWaitTickInterval()
	rlog := recovery.NewManager(lg, m)
	return &database{
		name:         name,
		path:         path,
		disk:         disk,
		pool:         pool,
		catalog:      cat,
		locks:        txn.NewLockManager(tickInterval, lg, m),
		log:          rlog,
		checkpointer: recovery.NewCheckpointer(rlog, cfg.CheckpointInterval(), lg),
	}, nil
}

func (db *database) close() error {
	db.locks.Stop()
	if err := db.pool.FlushAll(); err != nil {
		return err
	}
	return db.disk.Close()
}

// listDatabases returns every database name found under dataDir, sorted.
func listDatabases(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".db" {
			names = append(names, e.Name()[:len(e.Name())-len(".db")])
		}
	}
	return names, nil
}

// dropDatabase removes a database's file from disk. The database must not
// be the currently open one.
func dropDatabase(dataDir, name string) error {
	path := databasePath(dataDir, name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("engine: database %q does not exist", name)
	}
	return os.Remove(path)
}
