// Package txn implements strict two-phase locking over row ids: per-row
// request queues, shared/exclusive/upgrade modes, a waits-for graph, and a
// background cycle breaker that aborts the youngest transaction in any
// cycle it finds.
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/nainya/treestore/internal/record"
)

// IsolationLevel controls whether shared locks may be acquired at all.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	Serializable
)

// State is a transaction's position in the 2PL state machine.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction tracks one transaction's isolation level, 2PL phase, and the
// row sets it currently holds locks on.
type Transaction struct {
	ID        uint64
	Isolation IsolationLevel

	mu        sync.Mutex
	state     State
	shared    map[record.RowID]struct{}
	exclusive map[record.RowID]struct{}
}

func newTransaction(id uint64, isolation IsolationLevel) *Transaction {
	return &Transaction{
		ID:        id,
		Isolation: isolation,
		state:     Growing,
		shared:    make(map[record.RowID]struct{}),
		exclusive: make(map[record.RowID]struct{}),
	}
}

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

var nextTxnID uint64

// NewTransactionID allocates a process-wide unique transaction id.
func NewTransactionID() uint64 {
	return atomic.AddUint64(&nextTxnID, 1)
}
