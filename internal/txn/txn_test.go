// ABOUTME: Tests for the 2PL lock manager
// ABOUTME: Covers shared/exclusive grant ordering, upgrade, 2PL phase transitions, and deadlock detection

package txn

import (
	"testing"
	"time"

	"github.com/nainya/treestore/internal/logger"
	"github.com/nainya/treestore/internal/record"
)

func newTestLockManager(t *testing.T) *LockManager {
	t.Helper()
	log := logger.NewLogger(logger.Config{Level: "error"})
	lm := NewLockManager(20*time.Millisecond, log, nil)
	t.Cleanup(lm.Stop)
	return lm
}

func TestLockSharedRejectedOnReadUncommitted(t *testing.T) {
	lm := newTestLockManager(t)
	txn := lm.Begin(ReadUncommitted)
	rid := record.RowID{Page: 1, Slot: 0}
	if err := lm.LockShared(txn, rid); err == nil {
		t.Fatal("LockShared under ReadUncommitted succeeded, want error")
	}
}

func TestLockSharedMultipleReaders(t *testing.T) {
	lm := newTestLockManager(t)
	rid := record.RowID{Page: 1, Slot: 0}
	t1 := lm.Begin(ReadCommitted)
	t2 := lm.Begin(ReadCommitted)
	if err := lm.LockShared(t1, rid); err != nil {
		t.Fatalf("t1 LockShared: %v", err)
	}
	if err := lm.LockShared(t2, rid); err != nil {
		t.Fatalf("t2 LockShared: %v", err)
	}
	q := lm.queues[rid]
	if q.sharingCnt != 2 {
		t.Fatalf("sharingCnt = %d, want 2", q.sharingCnt)
	}
}

func TestLockExclusiveBlocksUntilSharedReleased(t *testing.T) {
	lm := newTestLockManager(t)
	rid := record.RowID{Page: 1, Slot: 0}
	reader := lm.Begin(ReadCommitted)
	writer := lm.Begin(ReadCommitted)

	if err := lm.LockShared(reader, rid); err != nil {
		t.Fatalf("LockShared: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- lm.LockExclusive(writer, rid) }()

	time.Sleep(30 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("LockExclusive returned early with err=%v while shared lock held", err)
	default:
	}

	if err := lm.Unlock(reader, rid); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("LockExclusive: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("LockExclusive never granted after shared lock released")
	}
}

func TestLockUpgradeConvertsSharedToExclusive(t *testing.T) {
	lm := newTestLockManager(t)
	rid := record.RowID{Page: 1, Slot: 0}
	txn := lm.Begin(ReadCommitted)
	if err := lm.LockShared(txn, rid); err != nil {
		t.Fatalf("LockShared: %v", err)
	}
	if err := lm.LockUpgrade(txn, rid); err != nil {
		t.Fatalf("LockUpgrade: %v", err)
	}
	if _, held := txn.exclusive[rid]; !held {
		t.Fatal("txn does not hold exclusive lock after upgrade")
	}
	if _, held := txn.shared[rid]; held {
		t.Fatal("txn still holds shared lock after upgrade")
	}
}

func TestLockUpgradeConflictWhenTwoTxnsRace(t *testing.T) {
	lm := newTestLockManager(t)
	rid := record.RowID{Page: 1, Slot: 0}
	t1 := lm.Begin(ReadCommitted)
	t2 := lm.Begin(ReadCommitted)
	if err := lm.LockShared(t1, rid); err != nil {
		t.Fatalf("t1 LockShared: %v", err)
	}
	if err := lm.LockShared(t2, rid); err != nil {
		t.Fatalf("t2 LockShared: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- lm.LockUpgrade(t1, rid) }()
	time.Sleep(20 * time.Millisecond)

	if err := lm.LockUpgrade(t2, rid); err == nil {
		t.Fatal("second concurrent LockUpgrade succeeded, want UpgradeConflict")
	}

	if err := lm.Unlock(t2, rid); err != nil {
		t.Fatalf("Unlock t2: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("t1 LockUpgrade: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("t1 LockUpgrade never completed")
	}
}

func TestUnlockTransitionsGrowingToShrinking(t *testing.T) {
	lm := newTestLockManager(t)
	rid := record.RowID{Page: 1, Slot: 0}
	txn := lm.Begin(ReadCommitted)
	if err := lm.LockShared(txn, rid); err != nil {
		t.Fatalf("LockShared: %v", err)
	}
	if txn.State() != Growing {
		t.Fatalf("state = %v before unlock, want Growing", txn.State())
	}
	if err := lm.Unlock(txn, rid); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if txn.State() != Shrinking {
		t.Fatalf("state = %v after first unlock, want Shrinking", txn.State())
	}
}

func TestLockRejectedOnShrinking(t *testing.T) {
	lm := newTestLockManager(t)
	rid1 := record.RowID{Page: 1, Slot: 0}
	rid2 := record.RowID{Page: 2, Slot: 0}
	txn := lm.Begin(ReadCommitted)
	if err := lm.LockShared(txn, rid1); err != nil {
		t.Fatalf("LockShared rid1: %v", err)
	}
	if err := lm.Unlock(txn, rid1); err != nil {
		t.Fatalf("Unlock rid1: %v", err)
	}
	if err := lm.LockShared(txn, rid2); err == nil {
		t.Fatal("LockShared during Shrinking succeeded, want LockOnShrinking error")
	}
}

func TestCycleBreakerAbortsYoungestTransaction(t *testing.T) {
	lm := newTestLockManager(t)
	ridA := record.RowID{Page: 1, Slot: 0}
	ridB := record.RowID{Page: 2, Slot: 0}

	t1 := lm.Begin(ReadCommitted)
	t2 := lm.Begin(ReadCommitted)

	if err := lm.LockExclusive(t1, ridA); err != nil {
		t.Fatalf("t1 lock ridA: %v", err)
	}
	if err := lm.LockExclusive(t2, ridB); err != nil {
		t.Fatalf("t2 lock ridB: %v", err)
	}

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- lm.LockExclusive(t1, ridB) }()
	go func() { done2 <- lm.LockExclusive(t2, ridA) }()

	var err1, err2 error
	select {
	case err1 = <-done1:
	case <-time.After(2 * time.Second):
		t.Fatal("t1's wait on ridB never resolved")
	}
	select {
	case err2 = <-done2:
	case <-time.After(2 * time.Second):
		t.Fatal("t2's wait on ridA never resolved")
	}

	// The cycle breaker aborts the youngest (largest id) transaction;
	// the other side of the cycle must have been granted its lock.
	if (err1 == nil) == (err2 == nil) {
		t.Fatalf("expected exactly one side to deadlock, got err1=%v err2=%v", err1, err2)
	}
	if err2 == nil {
		t.Fatalf("t2 (id %d) is the youngest but t1 (id %d) was aborted: err1=%v", t2.ID, t1.ID, err1)
	}
}
