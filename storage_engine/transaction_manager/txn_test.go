package txn

import (
	"KeelDB/dberrors"
	"KeelDB/types"
	"errors"
	"testing"
)

func TestBeginCommitAbort(t *testing.T) {
	tm := NewTxnManager(10)

	a := tm.Begin()
	b := tm.Begin()
	if a.ID != 10 || b.ID != 11 {
		t.Fatalf("ids = %d, %d, want 10, 11", a.ID, b.ID)
	}
	if tm.ActiveCount() != 2 || !tm.IsActive(a.ID) {
		t.Fatalf("active count = %d", tm.ActiveCount())
	}

	if err := tm.Commit(a.ID); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if a.State != TxnCommitted || tm.IsActive(a.ID) {
		t.Errorf("committed txn state %v, active %v", a.State, tm.IsActive(a.ID))
	}

	if err := tm.Abort(b.ID); err != nil {
		t.Fatalf("Failed to abort: %v", err)
	}
	if b.State != TxnAborted {
		t.Errorf("aborted txn state %v", b.State)
	}

	// a finished transaction cannot finish again
	if err := tm.Commit(a.ID); !errors.Is(err, dberrors.ErrTxnDone) {
		t.Errorf("expected ErrTxnDone committing twice, got %v", err)
	}
	if err := tm.Abort(a.ID); !errors.Is(err, dberrors.ErrTxnDone) {
		t.Errorf("expected ErrTxnDone aborting a committed txn, got %v", err)
	}
	if tm.ActiveCount() != 0 || tm.NextID() != 12 {
		t.Errorf("active %d next %d", tm.ActiveCount(), tm.NextID())
	}
}

func TestZeroFirstID(t *testing.T) {
	if id := NewTxnManager(0).Begin().ID; id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}
}

func TestRollbackOrder(t *testing.T) {
	tm := NewTxnManager(1)
	txn := tm.Begin()

	txn.RecordChange(types.IndexPrimary, types.OpInsert, []byte{1}, nil, []byte("row1"))
	txn.RecordChange(types.IndexSecondary, types.OpInsert, []byte{2}, nil, []byte{1})
	txn.RecordChange(types.IndexPrimary, types.OpDelete, []byte{3}, []byte("row3"), nil)

	if !txn.Touched() {
		t.Fatal("transaction with changes reports untouched")
	}

	var keys []byte
	err := txn.RollbackOrder(func(u UndoEntry) error {
		keys = append(keys, u.Key[0])
		return nil
	})
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if string(keys) != string([]byte{3, 2, 1}) {
		t.Errorf("rollback order = %v, want [3 2 1]", keys)
	}

	// an error stops the walk
	stop := errors.New("stop")
	n := 0
	err = txn.RollbackOrder(func(u UndoEntry) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("walk did not stop: n=%d err=%v", n, err)
	}
}
