// ABOUTME: Tests for the in-memory ARIES-style recovery log
// ABOUTME: Covers checkpoint snapshotting, forward redo, and loser-transaction undo

package recovery

import (
	"testing"

	"github.com/nainya/treestore/internal/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log := logger.NewLogger(logger.Config{Level: "error"})
	return NewManager(log, nil)
}

func TestRedoReappliesRecordsAfterCheckpoint(t *testing.T) {
	mgr := newTestManager(t)

	mgr.AppendBegin(1)
	mgr.AppendInsert(1, "a", "1")
	mgr.AppendCommit(1)

	ck := mgr.Checkpoint()

	mgr.AppendBegin(2)
	mgr.AppendInsert(2, "b", "2")
	mgr.AppendCommit(2)

	kv, att := mgr.Redo(ck)
	if kv["a"] != "1" || kv["b"] != "2" {
		t.Fatalf("Redo kv = %v, want a=1 b=2", kv)
	}
	if len(att) != 0 {
		t.Fatalf("Redo att = %v, want empty (both txns committed)", att)
	}
}

func TestUndoRevertsUncommittedInsert(t *testing.T) {
	mgr := newTestManager(t)

	mgr.AppendBegin(1)
	mgr.AppendInsert(1, "a", "1")
	mgr.AppendCommit(1)
	ck := mgr.Checkpoint()

	mgr.AppendBegin(2)
	mgr.AppendInsert(2, "b", "2")
	// txn 2 never commits or aborts: a crash leaves it in the ATT.

	kv, att := mgr.Redo(ck)
	if _, stillOpen := att[2]; !stillOpen {
		t.Fatal("txn 2 missing from ATT after redo, want it present as a loser")
	}
	if kv["b"] != "2" {
		t.Fatal("redo did not apply txn 2's insert before undo runs")
	}

	if err := mgr.Undo(kv, att); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if _, present := kv["b"]; present {
		t.Fatal("key b survived undo of its uncommitted inserting transaction")
	}
	if kv["a"] != "1" {
		t.Fatal("undo rolled back a committed transaction's effect")
	}
	if len(att) != 0 {
		t.Fatalf("att not cleared after undo: %v", att)
	}
}

func TestUndoRestoresDeletedKey(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AppendBegin(1)
	mgr.AppendInsert(1, "a", "1")
	mgr.AppendCommit(1)
	ck := mgr.Checkpoint()

	mgr.AppendBegin(2)
	mgr.AppendDelete(2, "a")

	kv, att := mgr.Redo(ck)
	if _, present := kv["a"]; present {
		t.Fatal("redo did not apply the delete")
	}
	if err := mgr.Undo(kv, att); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if kv["a"] != "1" {
		t.Fatalf("undo did not restore deleted key, kv = %v", kv)
	}
}

func TestUndoRevertsUpdateToOldValue(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AppendBegin(1)
	mgr.AppendInsert(1, "a", "1")
	mgr.AppendCommit(1)
	ck := mgr.Checkpoint()

	mgr.AppendBegin(2)
	mgr.AppendUpdate(2, "a", "99")

	kv, att := mgr.Redo(ck)
	if kv["a"] != "99" {
		t.Fatalf("redo did not apply the update, kv = %v", kv)
	}
	if err := mgr.Undo(kv, att); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if kv["a"] != "1" {
		t.Fatalf("undo did not revert to old value, kv = %v", kv)
	}
}

func TestCheckpointSnapshotIsIndependentOfFutureWrites(t *testing.T) {
	mgr := newTestManager(t)
	mgr.AppendBegin(1)
	mgr.AppendInsert(1, "a", "1")
	mgr.AppendCommit(1)

	ck := mgr.Checkpoint()
	mgr.AppendBegin(2)
	mgr.AppendInsert(2, "b", "2")
	mgr.AppendCommit(2)

	if _, present := ck.KV["b"]; present {
		t.Fatal("checkpoint snapshot mutated by writes taken after it")
	}
}
