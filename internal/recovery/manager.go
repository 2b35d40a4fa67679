package recovery

import (
	"sync"

	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Checkpoint snapshots the log's replay state at one instant: the LSN up
// to which the key/value map is already durable, the active transaction
// table (txn id -> its last LSN), and a copy of the key/value map. That
// copy holds every logged write up to the snapshot, including writes of
// transactions still in the ATT and of aborted transactions; it is not
// limited to committed writes.
type Checkpoint struct {
	At           *timestamppb.Timestamp
	PersistedLSN uint64
	ATT          map[uint64]uint64
	KV           map[string]string
}

// Manager is the in-memory ARIES-style recovery log: an LSN-ordered map
// of records over a toy key/value store, replayed by Redo (forward, from
// the last checkpoint) and Undo (backward, per loser transaction).
type Manager struct {
	mu sync.Mutex

	records []*LogRecord
	byLSN   map[uint64]*LogRecord
	nextLSN uint64

	txnLastLSN map[uint64]uint64
	kv         map[string]string

	persistedLSN uint64
	lastNewPage  map[uint32]bool

	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewManager starts an empty log over an empty key/value map.
func NewManager(log *logger.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		byLSN:       make(map[uint64]*LogRecord),
		txnLastLSN:  make(map[uint64]uint64),
		kv:          make(map[string]string),
		lastNewPage: make(map[uint32]bool),
		nextLSN:     1,
		log:         log.Component("recovery"),
		metrics:     m,
	}
}

func (m *Manager) appendLocked(r *LogRecord) {
	r.LSN = m.nextLSN
	m.nextLSN++
	r.PrevLSN = m.txnLastLSN[r.TxnID]
	m.records = append(m.records, r)
	m.byLSN[r.LSN] = r
	m.txnLastLSN[r.TxnID] = r.LSN
}

// AppendBegin starts txnID's back-chain.
func (m *Manager) AppendBegin(txnID uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &LogRecord{TxnID: txnID, Type: TypeBegin}
	m.appendLocked(r)
	return r.LSN
}

// AppendInsert logs a key/value insertion and applies it to the in-memory
// map immediately (the log models a write-through engine: the effect is
// visible right away; Undo removes it only for a transaction still open
// after Redo, i.e. one with neither a Commit nor an Abort record).
func (m *Manager) AppendInsert(txnID uint64, key, value string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &LogRecord{TxnID: txnID, Type: TypeInsert, Key: key, NewValue: value}
	m.appendLocked(r)
	m.kv[key] = value
	return r.LSN
}

// AppendDelete logs a key deletion, capturing the old value for undo.
func (m *Manager) AppendDelete(txnID uint64, key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &LogRecord{TxnID: txnID, Type: TypeDelete, Key: key, OldValue: m.kv[key]}
	m.appendLocked(r)
	delete(m.kv, key)
	return r.LSN
}

// AppendUpdate logs a key update, capturing both old and new values.
func (m *Manager) AppendUpdate(txnID uint64, key, newValue string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &LogRecord{TxnID: txnID, Type: TypeUpdate, Key: key, OldValue: m.kv[key], NewValue: newValue}
	m.appendLocked(r)
	m.kv[key] = newValue
	return r.LSN
}

// AppendNewPage logs that pageID was allocated. Redo counts the record
// only as activity of its transaction (in the ATT); it does not replay the
// allocation.
func (m *Manager) AppendNewPage(txnID uint64, pageID uint32) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &LogRecord{TxnID: txnID, Type: TypeNewPage, PageID: pageID}
	m.appendLocked(r)
	m.lastNewPage[pageID] = true
	return r.LSN
}

// AppendCommit closes out txnID's back-chain and drops it from the ATT.
func (m *Manager) AppendCommit(txnID uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &LogRecord{TxnID: txnID, Type: TypeCommit}
	m.appendLocked(r)
	delete(m.txnLastLSN, txnID)
	return r.LSN
}

// AppendAbort closes out txnID's back-chain and drops it from the ATT
// without undoing anything. Redo also drops a transaction at its Abort
// record, so Undo does not revert an aborted transaction's writes either.
func (m *Manager) AppendAbort(txnID uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &LogRecord{TxnID: txnID, Type: TypeAbort}
	m.appendLocked(r)
	delete(m.txnLastLSN, txnID)
	return r.LSN
}

// Snapshot returns a copy of the current key/value map, which includes
// writes of transactions that have not committed. For tests and callers
// that want to read without racing the log.
func (m *Manager) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.kv))
	for k, v := range m.kv {
		out[k] = v
	}
	return out
}

// Checkpoint snapshots the log's current replay state: persisted LSN,
// active transaction table, and a copy of the key/value map with every
// logged write so far, committed or not.
func (m *Manager) Checkpoint() *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	att := make(map[uint64]uint64, len(m.txnLastLSN))
	for txn, lsn := range m.txnLastLSN {
		att[txn] = lsn
	}
	kv := make(map[string]string, len(m.kv))
	for k, v := range m.kv {
		kv[k] = v
	}
	ck := &Checkpoint{
		At:           timestamppb.Now(),
		PersistedLSN: m.persistedLSN,
		ATT:          att,
		KV:           kv,
	}
	if m.metrics != nil {
		m.metrics.RecoveryOpsAppliedTotal.WithLabelValues("checkpoint").Inc()
	}
	return ck
}

// Redo scans the log in LSN order from ck's persisted LSN forward,
// reapplying every record's forward effect to a fresh key/value map seeded
// from ck.KV, rebuilding the active transaction table as it goes. Returns
// the replayed map and the ATT of transactions still open after the scan
// (the losers Undo must roll back).
func (m *Manager) Redo(ck *Checkpoint) (map[string]string, map[uint64]uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kv := make(map[string]string, len(ck.KV))
	for k, v := range ck.KV {
		kv[k] = v
	}
	att := make(map[uint64]uint64, len(ck.ATT))
	for txn, lsn := range ck.ATT {
		att[txn] = lsn
	}

	applied := 0
	for _, r := range m.records {
		if r.LSN <= ck.PersistedLSN {
			continue
		}
		switch r.Type {
		case TypeBegin:
			att[r.TxnID] = r.LSN
		case TypeInsert:
			kv[r.Key] = r.NewValue
			att[r.TxnID] = r.LSN
		case TypeDelete:
			delete(kv, r.Key)
			att[r.TxnID] = r.LSN
		case TypeUpdate:
			kv[r.Key] = r.NewValue
			att[r.TxnID] = r.LSN
		case TypeNewPage:
			att[r.TxnID] = r.LSN
		case TypeCommit, TypeAbort:
			delete(att, r.TxnID)
		}
		applied++
		m.persistedLSN = r.LSN
	}

	if m.log != nil {
		m.log.LogRecovery("redo", applied, 0)
	}
	if m.metrics != nil {
		m.metrics.RecoveryOpsAppliedTotal.WithLabelValues("redo").Add(float64(applied))
	}
	return kv, att
}

// Undo walks every transaction still in att after Redo, reversing its
// operations in LSN-descending order by following each record's PrevLSN
// back-chain: Insert is erased, Delete is restored, Update is reverted to
// its old value. att is left empty when Undo returns.
func (m *Manager) Undo(kv map[string]string, att map[uint64]uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	applied := 0
	for txnID, lsn := range att {
		cur := lsn
		for cur != 0 {
			r, ok := m.byLSN[cur]
			if !ok {
				return dberr.New(dberr.Failed, "Manager.Undo", nil)
			}
			switch r.Type {
			case TypeInsert:
				delete(kv, r.Key)
			case TypeDelete:
				kv[r.Key] = r.OldValue
			case TypeUpdate:
				kv[r.Key] = r.OldValue
			}
			applied++
			cur = r.PrevLSN
		}
		delete(att, txnID)
	}

	if m.log != nil {
		m.log.LogRecovery("undo", applied, 0)
	}
	if m.metrics != nil {
		m.metrics.RecoveryOpsAppliedTotal.WithLabelValues("undo").Add(float64(applied))
	}
	return nil
}
