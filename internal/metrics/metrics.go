// Package metrics provides Prometheus metrics for the storage engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus series exported by the engine.
type Metrics struct {
	// Buffer pool
	BufferHitsTotal      prometheus.Counter
	BufferMissesTotal    prometheus.Counter
	BufferEvictionsTotal prometheus.Counter
	BufferPinnedGauge    prometheus.Gauge

	// Disk
	DiskPageReadsTotal    prometheus.Counter
	DiskPageWritesTotal   prometheus.Counter
	DiskPagesAllocated    prometheus.Gauge
	DiskBytesWrittenTotal prometheus.Counter

	// Lock manager
	LockGrantsTotal    *prometheus.CounterVec
	LockWaitsTotal     prometheus.Counter
	LockDeadlocksTotal prometheus.Counter
	LockWaitDuration   prometheus.Histogram

	// Table heap
	HeapInsertsTotal prometheus.Counter
	HeapUpdatesTotal prometheus.Counter
	HeapDeletesTotal prometheus.Counter

	// B+-tree
	BTreeSplitsTotal prometheus.Counter
	BTreeMergesTotal prometheus.Counter

	// Recovery
	RecoveryOpsAppliedTotal *prometheus.CounterVec

	// Catalog
	CatalogTablesGauge  prometheus.Gauge
	CatalogIndexesGauge prometheus.Gauge

	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{ServerStartTime: time.Now()}

	m.BufferHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_buffer_pool_hits_total",
		Help: "Total number of buffer pool fetches served from a resident frame.",
	})
	m.BufferMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_buffer_pool_misses_total",
		Help: "Total number of buffer pool fetches that required a disk read.",
	})
	m.BufferEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_buffer_pool_evictions_total",
		Help: "Total number of frames evicted by the replacer.",
	})
	m.BufferPinnedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_buffer_pool_pinned_frames",
		Help: "Current number of pinned frames.",
	})

	m.DiskPageReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_disk_page_reads_total",
		Help: "Total number of 4KiB page reads issued to the disk manager.",
	})
	m.DiskPageWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_disk_page_writes_total",
		Help: "Total number of 4KiB page writes issued to the disk manager.",
	})
	m.DiskPagesAllocated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_disk_pages_allocated",
		Help: "Current number of allocated logical pages.",
	})
	m.DiskBytesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_disk_bytes_written_total",
		Help: "Total bytes written to the database file.",
	})

	m.LockGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_lock_grants_total",
		Help: "Total number of lock grants by mode.",
	}, []string{"mode"})
	m.LockWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_lock_waits_total",
		Help: "Total number of lock requests that had to block.",
	})
	m.LockDeadlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_lock_deadlocks_total",
		Help: "Total number of transactions aborted by the cycle breaker.",
	})
	m.LockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storage_lock_wait_duration_seconds",
		Help:    "Time spent blocked waiting for a row lock.",
		Buckets: prometheus.DefBuckets,
	})

	m.HeapInsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_heap_inserts_total",
		Help: "Total number of tuples inserted into table heaps.",
	})
	m.HeapUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_heap_updates_total",
		Help: "Total number of tuple updates applied to table heaps.",
	})
	m.HeapDeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_heap_deletes_total",
		Help: "Total number of tuples deleted from table heaps.",
	})

	m.BTreeSplitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_btree_splits_total",
		Help: "Total number of B+-tree node splits.",
	})
	m.BTreeMergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storage_btree_merges_total",
		Help: "Total number of B+-tree node merges.",
	})

	m.RecoveryOpsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_recovery_ops_applied_total",
		Help: "Total number of log records applied during redo/undo, by phase.",
	}, []string{"phase"})

	m.CatalogTablesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_catalog_tables",
		Help: "Current number of tables registered in the catalog.",
	})
	m.CatalogIndexesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_catalog_indexes",
		Help: "Current number of indexes registered in the catalog.",
	})

	m.ServerUptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storage_server_uptime_seconds",
		Help: "Server uptime in seconds.",
	})

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}
