package txn

import (
	"KeelDB/dberrors"
	"fmt"
	"sync/atomic"
)

/*
TxnManager hands out transaction ids and tracks which transactions are open
and the undo list of each. Writing the log and touching the trees is left
to the engine; a transaction here is only bookkeeping:

	Begin  → Active ──Commit──→ Committed  (undo list dropped)
	                 └─Abort───→ Aborted    (undo list already applied)
*/

// NewTxnManager issues ids starting at firstID. After recovery this is one
// past the largest id found in the log, so ids never repeat inside a WAL.
func NewTxnManager(firstID uint64) *TxnManager {
	if firstID == 0 {
		firstID = 1
	}
	return &TxnManager{
		nextID:     firstID,
		activeTxns: make(map[uint64]*Transaction),
	}
}

// Begin starts a new transaction and registers it as active.
func (tm *TxnManager) Begin() *Transaction {
	txnID := atomic.AddUint64(&tm.nextID, 1) - 1

	txn := &Transaction{
		ID:    txnID,
		State: TxnActive,
		Undo:  make([]UndoEntry, 0),
	}

	tm.mu.Lock()
	tm.activeTxns[txnID] = txn
	tm.mu.Unlock()

	return txn
}

// Commit marks a transaction as committed and removes it from the active set.
// Called AFTER OpTxnCommit has been written to WAL and synced.
func (tm *TxnManager) Commit(txnID uint64) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txn, exists := tm.activeTxns[txnID]
	if !exists {
		return fmt.Errorf("commit %d: %w", txnID, dberrors.ErrTxnDone)
	}

	txn.State = TxnCommitted
	txn.Undo = nil
	delete(tm.activeTxns, txnID)
	return nil
}

// Abort marks a transaction as aborted and removes it from the active set.
// Called AFTER its changes were undone and OpTxnAbort was logged.
func (tm *TxnManager) Abort(txnID uint64) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txn, exists := tm.activeTxns[txnID]
	if !exists {
		return fmt.Errorf("abort %d: %w", txnID, dberrors.ErrTxnDone)
	}

	txn.State = TxnAborted
	txn.Undo = nil
	delete(tm.activeTxns, txnID)
	return nil
}

// IsActive returns true if the given txnID is currently active.
func (tm *TxnManager) IsActive(txnID uint64) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, exists := tm.activeTxns[txnID]
	return exists
}

// ActiveCount is the number of transactions in flight. Checkpoints only run
// when it is zero.
func (tm *TxnManager) ActiveCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.activeTxns)
}

// NextID is the id the next Begin will hand out.
func (tm *TxnManager) NextID() uint64 {
	return atomic.LoadUint64(&tm.nextID)
}
