package storageengine

import (
	"KeelDB/dberrors"
	"KeelDB/logging"
	checkpoint "KeelDB/storage_engine/checkpoint_manager"
	diskmanager "KeelDB/storage_engine/disk_manager"
	txn "KeelDB/storage_engine/transaction_manager"
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
	"fmt"
)

/*
Transaction boundaries.

Every change is logged before it is applied:

	Txn.Insert/Update/Delete
	    ├── read the before-image
	    ├── WAL.AppendBatch([BEGIN], primary record, secondary record(s))   durable per sync mode
	    ├── apply to the primary tree
	    ├── apply to the secondary tree
	    └── remember the change in the undo list

	Commit     COMMIT record + fsync: the durability boundary
	Rollback   undo list newest first, then ABORT record + fsync

Pages touched by a transaction stay dirty in the pager until a checkpoint,
and a checkpoint never runs while a transaction is open, so the main file
never sees uncommitted data.
*/

// Begin starts an explicit transaction. It blocks while another one is open.
//
// The transaction holds the writer slot until Commit or Rollback. One that is
// dropped without either keeps it forever: later Begin, Checkpoint and Close
// calls block. Pair every Begin with a deferred Rollback; after a Commit it
// only returns ErrTxnDone.
func (se *Engine) Begin() (*Txn, error) {
	se.writer.Lock()

	se.mu.Lock()
	defer se.mu.Unlock()
	if err := se.usableLocked(); err != nil {
		se.writer.Unlock()
		return nil, err
	}

	t := se.TxnManager.Begin()
	return &Txn{se: se, t: t, log: logging.WithTx(se.log, t.ID)}, nil
}

// ID returns the transaction id.
func (tx *Txn) ID() uint64 { return tx.t.ID }

// Commit makes every change of the transaction durable and releases the
// writer slot.
func (tx *Txn) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction %d: %w", tx.t.ID, dberrors.ErrTxnDone)
	}
	se := tx.se
	defer se.writer.Unlock()
	se.mu.Lock()
	defer se.mu.Unlock()

	if tx.poisoned != nil {
		if err := tx.rollbackLocked(); err != nil {
			return err
		}
		return fmt.Errorf("transaction %d rolled back after a failed write: %w", tx.t.ID, tx.poisoned)
	}
	tx.done = true

	if tx.t.FirstLSN != 0 {
		lsn, err := se.WalManager.Append(&wal_manager.Record{TxnID: tx.t.ID, Kind: types.OpTxnCommit})
		if err != nil {
			// the commit record may or may not be on disk; only recovery can tell
			se.failed = fmt.Errorf("commit of transaction %d: %w", tx.t.ID, err)
			se.TxnManager.Abort(tx.t.ID)
			return se.failed
		}
		tx.t.LastLSN = lsn
	}
	if err := se.TxnManager.Commit(tx.t.ID); err != nil {
		return err
	}
	if !tx.t.Touched() {
		return nil
	}
	tx.log.Debug("committed", "changes", len(tx.t.Undo), "lsn", tx.t.LastLSN)

	se.maybeCheckpointLocked()
	return nil
}

// Rollback undoes every change of the transaction and releases the writer
// slot.
func (tx *Txn) Rollback() error {
	if tx.done {
		return fmt.Errorf("transaction %d: %w", tx.t.ID, dberrors.ErrTxnDone)
	}
	se := tx.se
	defer se.writer.Unlock()
	se.mu.Lock()
	defer se.mu.Unlock()

	return tx.rollbackLocked()
}

func (tx *Txn) rollbackLocked() error {
	se := tx.se
	tx.done = true

	if se.failed != nil {
		// no abort record: recovery sees the transaction in flight and undoes it
		se.TxnManager.Abort(tx.t.ID)
		return se.failed
	}

	err := tx.t.RollbackOrder(func(u txn.UndoEntry) error {
		return se.applyImage(u.Index, u.Key, u.Before)
	})
	if err != nil {
		se.failed = fmt.Errorf("rollback of transaction %d: %w", tx.t.ID, err)
		se.TxnManager.Abort(tx.t.ID)
		return se.failed
	}

	if tx.t.FirstLSN != 0 {
		if _, err := se.WalManager.Append(&wal_manager.Record{TxnID: tx.t.ID, Kind: types.OpTxnAbort}); err != nil {
			// without the marker recovery would treat the transaction as in flight
			se.failed = fmt.Errorf("abort of transaction %d: %w", tx.t.ID, err)
			se.TxnManager.Abort(tx.t.ID)
			return se.failed
		}
	}
	tx.log.Debug("rolled back", "changes", len(tx.t.Undo))
	return se.TxnManager.Abort(tx.t.ID)
}

// logChanges writes the records of one mutation, preceded by the begin
// record on the transaction's first change.
func (tx *Txn) logChanges(recs ...*wal_manager.Record) error {
	batch := recs
	if tx.t.FirstLSN == 0 {
		batch = append([]*wal_manager.Record{{Kind: types.OpTxnBegin}}, recs...)
	}
	for _, r := range batch {
		r.TxnID = tx.t.ID
	}

	lsn, err := tx.se.WalManager.AppendBatch(batch)
	if err != nil {
		// the records may have reached the file; this transaction must not commit
		tx.poisoned = err
		return err
	}
	if tx.t.FirstLSN == 0 {
		tx.t.FirstLSN = batch[0].LSN
	}
	tx.t.LastLSN = lsn
	return nil
}

// usable rejects calls on a finished transaction or a failed engine.
// Assumes mu is held.
func (tx *Txn) usable() error {
	if tx.done {
		return fmt.Errorf("transaction %d: %w", tx.t.ID, dberrors.ErrTxnDone)
	}
	if tx.poisoned != nil {
		return fmt.Errorf("transaction %d must be rolled back: %w", tx.t.ID, tx.poisoned)
	}
	return tx.se.usableLocked()
}

// fail handles an error from a tree after the change was logged. The tree
// may be half modified, so the engine stops accepting calls; reopening
// recovers from the main file and the log.
func (tx *Txn) fail(err error) error {
	tx.poisoned = err
	tx.se.failed = fmt.Errorf("transaction %d left the indexes half applied: %w", tx.t.ID, err)
	return err
}

// autoCommit runs fn in its own transaction.
func (se *Engine) autoCommit(fn func(tx *Txn) error) error {
	tx, err := se.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			se.log.Error("failed to roll back", "tx_id", tx.t.ID, "error", rerr)
		}
		return err
	}
	return tx.Commit()
}

// ############################################# CHECKPOINTS #############################################

// Checkpoint writes every dirty page to the main file and truncates the
// WAL. It waits for an open explicit transaction to finish.
func (se *Engine) Checkpoint() (*checkpoint.Checkpoint, error) {
	se.writer.Lock()
	defer se.writer.Unlock()
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.usableLocked(); err != nil {
		return nil, err
	}
	return se.checkpointLocked()
}

// checkpointLocked assumes the writer slot and mu are held, or that the
// engine is not yet shared.
func (se *Engine) checkpointLocked() (*checkpoint.Checkpoint, error) {
	return se.CheckpointManager.Run(checkpoint.Params{
		WAL:        se.WalManager,
		Pager:      se.Pager,
		Stamp:      se.stampHeader,
		AfterLog:   se.checkpointHook,
		ArchiveDir: se.opts.ArchiveDir,
		DatabaseID: se.header.DatabaseID.String(),
		PageCount:  se.Pager.PageCount,
		RowCount:   se.rowCount,
	})
}

// stampHeader writes page 0 through the pager with the current roots, free
// list, row count and the checkpoint's begin LSN.
func (se *Engine) stampHeader(beginLSN uint64) error {
	h := se.header
	h.PrimaryRoot, h.SecondaryRoot = se.IndexManager.Roots()
	h.PageCount = se.Pager.PageCount()
	h.FreeListHead = se.Pager.FreeListHead()
	h.RowCount = se.rowCount
	h.CheckpointLSN = beginLSN

	if err := se.Pager.WritePage(0, diskmanager.EncodeFileHeader(h)); err != nil {
		return err
	}
	se.header = h
	return nil
}

// maybeCheckpointLocked checkpoints after a commit once the dirty page or
// WAL size threshold is crossed. A failure is logged, not returned: the
// commit itself is already durable.
func (se *Engine) maybeCheckpointLocked() {
	dirty := se.Pager.DirtyCount()
	walBytes := se.WalManager.SizeBytes()

	due := (se.opts.CheckpointDirtyPages > 0 && dirty >= se.opts.CheckpointDirtyPages) ||
		(se.opts.CheckpointWALBytes > 0 && walBytes >= se.opts.CheckpointWALBytes)
	if !due {
		return
	}
	if _, err := se.checkpointLocked(); err != nil {
		se.log.Warn("automatic checkpoint failed", "dirty_pages", dirty, "wal_bytes", walBytes, "error", err)
	}
}
