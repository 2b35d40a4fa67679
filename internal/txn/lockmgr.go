package txn

import (
	"sync"
	"time"

	"github.com/nainya/treestore/internal/dberr"
	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/metrics"
	"github.com/nainya/treestore/internal/record"
)

type lockMode int

const (
	modeShared lockMode = iota
	modeExclusive
)

func (m lockMode) String() string {
	if m == modeExclusive {
		return "exclusive"
	}
	return "shared"
}

type lockRequest struct {
	txnID   uint64
	mode    lockMode
	granted bool
}

// rowQueue is one row's lock request queue.
type rowQueue struct {
	requests    []*lockRequest
	sharingCnt  int
	isWriting   bool
	isUpgrading bool
}

// LockManager grants shared/exclusive/upgrade locks over row ids under
// strict two-phase locking, with a single mutex guarding every queue and
// the waits-for graph (the engine's chosen granularity; a per-row latch
// scheme is an equally valid alternative).
type LockManager struct {
	mu   sync.Mutex
	cond *sync.Cond

	queues   map[record.RowID]*rowQueue
	waitsFor map[uint64]map[uint64]struct{}
	txns     map[uint64]*Transaction

	log     *logger.Logger
	metrics *metrics.Metrics

	stop chan struct{}
}

// NewLockManager starts the background cycle breaker at checkInterval.
func NewLockManager(checkInterval time.Duration, log *logger.Logger, m *metrics.Metrics) *LockManager {
	lm := &LockManager{
		queues:   make(map[record.RowID]*rowQueue),
		waitsFor: make(map[uint64]map[uint64]struct{}),
		txns:     make(map[uint64]*Transaction),
		log:      log.Component("lock"),
		metrics:  m,
		stop:     make(chan struct{}),
	}
	lm.cond = sync.NewCond(&lm.mu)
	go lm.runCycleBreaker(checkInterval)
	return lm
}

// Stop terminates the background cycle breaker.
func (lm *LockManager) Stop() { close(lm.stop) }

// Begin registers a new transaction at the given isolation level.
func (lm *LockManager) Begin(isolation IsolationLevel) *Transaction {
	t := newTransaction(NewTransactionID(), isolation)
	lm.mu.Lock()
	lm.txns[t.ID] = t
	lm.mu.Unlock()
	return t
}

func (lm *LockManager) getQueueLocked(rid record.RowID) *rowQueue {
	q, ok := lm.queues[rid]
	if !ok {
		q = &rowQueue{}
		lm.queues[rid] = q
	}
	return q
}

func (lm *LockManager) lockPrepareLocked(t *Transaction) error {
	if t.State() == Shrinking {
		return dberr.ErrLockOnShrinking
	}
	return nil
}

// LockShared acquires a shared lock on rid for t, blocking while the row
// is exclusively held or an upgrade is pending.
func (lm *LockManager) LockShared(t *Transaction, rid record.RowID) error {
	if t.Isolation == ReadUncommitted {
		return dberr.ErrLockSharedOnReadUncommitted
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.lockPrepareLocked(t); err != nil {
		return err
	}

	q := lm.getQueueLocked(rid)
	req := &lockRequest{txnID: t.ID, mode: modeShared}
	q.requests = append(q.requests, req)

	for q.isWriting || q.isUpgrading {
		if lm.metrics != nil {
			lm.metrics.LockWaitsTotal.Inc()
		}
		lm.rebuildWaitsForLocked(t.ID, q, true)
		lm.cond.Wait()
		if t.State() == Aborted {
			lm.removeRequestLocked(q, req)
			delete(lm.waitsFor, t.ID)
			return dberr.ErrDeadlock
		}
	}
	delete(lm.waitsFor, t.ID)

	req.granted = true
	q.sharingCnt++
	t.mu.Lock()
	t.shared[rid] = struct{}{}
	t.mu.Unlock()
	if lm.metrics != nil {
		lm.metrics.LockGrantsTotal.WithLabelValues("shared").Inc()
	}
	return nil
}

// LockExclusive acquires an exclusive lock on rid for t, blocking while
// any shared holders, a writer, or an in-flight upgrade hold the row.
func (lm *LockManager) LockExclusive(t *Transaction, rid record.RowID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if err := lm.lockPrepareLocked(t); err != nil {
		return err
	}

	q := lm.getQueueLocked(rid)
	req := &lockRequest{txnID: t.ID, mode: modeExclusive}
	q.requests = append(q.requests, req)

	for q.isWriting || q.isUpgrading || q.sharingCnt > 0 {
		if lm.metrics != nil {
			lm.metrics.LockWaitsTotal.Inc()
		}
		lm.rebuildWaitsForLocked(t.ID, q, false)
		lm.cond.Wait()
		if t.State() == Aborted {
			lm.removeRequestLocked(q, req)
			delete(lm.waitsFor, t.ID)
			return dberr.ErrDeadlock
		}
	}
	delete(lm.waitsFor, t.ID)

	req.granted = true
	q.isWriting = true
	t.mu.Lock()
	t.exclusive[rid] = struct{}{}
	t.mu.Unlock()
	if lm.metrics != nil {
		lm.metrics.LockGrantsTotal.WithLabelValues("exclusive").Inc()
	}
	return nil
}

// LockUpgrade converts t's shared hold on rid into an exclusive hold.
// Valid only during the Growing phase; rejects a second concurrent
// upgrader with UpgradeConflict.
func (lm *LockManager) LockUpgrade(t *Transaction, rid record.RowID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if t.State() != Growing {
		return dberr.ErrLockOnShrinking
	}
	q := lm.getQueueLocked(rid)
	if q.isUpgrading {
		return dberr.ErrUpgradeConflict
	}

	q.isUpgrading = true
	q.sharingCnt--

	for q.isWriting || q.sharingCnt > 0 {
		if lm.metrics != nil {
			lm.metrics.LockWaitsTotal.Inc()
		}
		lm.rebuildWaitsForLocked(t.ID, q, false)
		lm.cond.Wait()
		if t.State() == Aborted {
			q.isUpgrading = false
			delete(lm.waitsFor, t.ID)
			return dberr.ErrDeadlock
		}
	}
	delete(lm.waitsFor, t.ID)

	q.isUpgrading = false
	q.isWriting = true
	for _, r := range q.requests {
		if r.txnID == t.ID && r.mode == modeShared {
			r.mode = modeExclusive
		}
	}
	t.mu.Lock()
	delete(t.shared, rid)
	t.exclusive[rid] = struct{}{}
	t.mu.Unlock()
	if lm.metrics != nil {
		lm.metrics.LockGrantsTotal.WithLabelValues("exclusive").Inc()
	}
	return nil
}

// Unlock releases t's lock on rid. The first Unlock call for a
// transaction transitions it from Growing to Shrinking.
func (lm *LockManager) Unlock(t *Transaction, rid record.RowID) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	q, ok := lm.queues[rid]
	if !ok {
		return dberr.New(dberr.Failed, "LockManager.Unlock", nil)
	}

	var found *lockRequest
	for _, r := range q.requests {
		if r.txnID == t.ID {
			found = r
			break
		}
	}
	if found == nil {
		return dberr.New(dberr.Failed, "LockManager.Unlock", nil)
	}

	switch found.mode {
	case modeShared:
		q.sharingCnt--
		t.mu.Lock()
		delete(t.shared, rid)
		t.mu.Unlock()
	case modeExclusive:
		q.isWriting = false
		t.mu.Lock()
		delete(t.exclusive, rid)
		t.mu.Unlock()
	}
	lm.removeRequestLocked(q, found)

	if t.State() == Growing {
		t.setState(Shrinking)
	}
	lm.cond.Broadcast()
	return nil
}

// Commit releases every lock t holds and marks it Committed. If t was
// already aborted by the cycle breaker, its locks are still released but
// the transaction stays Aborted and ErrDeadlock is returned so the caller
// knows its writes never took effect.
func (lm *LockManager) Commit(t *Transaction) error {
	wasAborted := t.State() == Aborted
	lm.releaseAll(t)
	if !wasAborted {
		t.setState(Committed)
	}
	lm.mu.Lock()
	delete(lm.txns, t.ID)
	lm.mu.Unlock()
	if wasAborted {
		return dberr.ErrDeadlock
	}
	return nil
}

// Abort releases every lock t holds and marks it Aborted.
func (lm *LockManager) Abort(t *Transaction) error {
	lm.releaseAll(t)
	t.setState(Aborted)
	lm.mu.Lock()
	delete(lm.txns, t.ID)
	lm.mu.Unlock()
	return nil
}

func (lm *LockManager) releaseAll(t *Transaction) {
	t.mu.Lock()
	shared := make([]record.RowID, 0, len(t.shared))
	for rid := range t.shared {
		shared = append(shared, rid)
	}
	exclusive := make([]record.RowID, 0, len(t.exclusive))
	for rid := range t.exclusive {
		exclusive = append(exclusive, rid)
	}
	t.mu.Unlock()

	for _, rid := range shared {
		lm.Unlock(t, rid)
	}
	for _, rid := range exclusive {
		lm.Unlock(t, rid)
	}
}

func (lm *LockManager) removeRequestLocked(q *rowQueue, target *lockRequest) {
	for i, r := range q.requests {
		if r == target {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// abortLocked marks victim Aborted and wakes every waiter so it can
// observe the new state. Called by the cycle breaker with lm.mu held.
func (lm *LockManager) abortLocked(victimID uint64) {
	if t, ok := lm.txns[victimID]; ok {
		t.setState(Aborted)
	}
	delete(lm.waitsFor, victimID)
	for _, edges := range lm.waitsFor {
		delete(edges, victimID)
	}
	lm.cond.Broadcast()
}
