package storageengine

import (
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
	"fmt"
	"time"
)

/*
recoverFromWAL runs once at startup, after the newest page image batch has
been written back and before the engine accepts any call.

The main file holds exactly the state as of its checkpoint LSN: pages only
reach it through a checkpoint, and a checkpoint never runs while a
transaction is open. So:

	REDO  every change of a committed transaction logged after the
	      checkpoint LSN, in log order, by applying its after-image.
	      applyImage is idempotent, so running it over state that already
	      has the change is harmless.
	SKIP  transactions that logged an ABORT: they were undone in memory
	      before the marker and never reached the main file.
	UNDO  transactions with neither marker (in flight at the crash), newest
	      change first, by restoring the before-image, but only where the
	      entry still holds the after-image.

Then the row count is recounted and a checkpoint makes the result durable
and empties the log.
*/

type recoveryStats struct {
	records    int
	committed  int
	aborted    int
	inFlight   int
	redone     int
	undone     int
	maxTxnID   uint64
	checkpoint uint64
	lastLSN    uint64
}

// recoverFromWAL returns the first transaction id the engine may hand out.
func (se *Engine) recoverFromWAL(records []wal_manager.Record) (uint64, error) {
	if len(records) == 0 {
		return 1, nil
	}
	start := time.Now()

	st, err := se.replayRecords(records, se.header.CheckpointLSN)
	if err != nil {
		return 0, err
	}

	count, err := se.IndexManager.Primary().Count()
	if err != nil {
		return 0, fmt.Errorf("failed to recount rows: %w", err)
	}
	if uint32(count) != se.rowCount {
		se.log.Debug("row count corrected", "tracked", se.rowCount, "counted", count)
	}
	se.rowCount = uint32(count)

	if _, err := se.checkpointLocked(); err != nil {
		return 0, fmt.Errorf("failed to checkpoint recovered state: %w", err)
	}

	se.log.Info("recovered from WAL",
		"records", st.records,
		"checkpoint_lsn", st.checkpoint,
		"last_lsn", st.lastLSN,
		"committed", st.committed,
		"aborted", st.aborted,
		"in_flight", st.inFlight,
		"redone", st.redone,
		"undone", st.undone,
		"rows", se.rowCount,
		"took", time.Since(start))
	return st.maxTxnID + 1, nil
}

// replayRecords applies the redo and undo passes to the open trees for the
// records logged after checkpointLSN.
func (se *Engine) replayRecords(records []wal_manager.Record, checkpointLSN uint64) (recoveryStats, error) {
	st := recoveryStats{records: len(records), checkpoint: checkpointLSN}

	// single pass to classify transactions
	committed := make(map[uint64]bool)
	aborted := make(map[uint64]bool)
	seen := make(map[uint64]bool)
	for _, r := range records {
		st.lastLSN = r.LSN
		st.maxTxnID = max(st.maxTxnID, r.TxnID)
		if r.TxnID == 0 || r.LSN <= st.checkpoint {
			continue
		}
		seen[r.TxnID] = true
		switch r.Kind {
		case types.OpTxnCommit:
			committed[r.TxnID] = true
		case types.OpTxnAbort:
			aborted[r.TxnID] = true
		}
	}
	st.committed = len(committed)
	st.aborted = len(aborted)
	st.inFlight = len(seen) - len(committed) - len(aborted)

	// REDO in log order
	for _, r := range records {
		if r.LSN <= st.checkpoint || !r.Kind.IsMutation() || !committed[r.TxnID] {
			continue
		}
		if err := se.applyImage(r.Index, r.Key, r.After); err != nil {
			return st, fmt.Errorf("redo of %v on %v at LSN %d: %w", r.Kind, r.Index, r.LSN, err)
		}
		st.redone++
	}

	// UNDO in reverse, in-flight transactions only
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.LSN <= st.checkpoint || !r.Kind.IsMutation() || committed[r.TxnID] || aborted[r.TxnID] {
			continue
		}
		ok, err := se.imageMatches(r.Index, r.Key, r.After)
		if err != nil {
			return st, fmt.Errorf("undo check at LSN %d: %w", r.LSN, err)
		}
		if !ok {
			continue
		}
		if err := se.applyImage(r.Index, r.Key, r.Before); err != nil {
			return st, fmt.Errorf("undo of %v on %v at LSN %d: %w", r.Kind, r.Index, r.LSN, err)
		}
		st.undone++
	}
	return st, nil
}
