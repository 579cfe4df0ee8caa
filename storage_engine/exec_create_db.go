package storageengine

import (
	"KeelDB/dberrors"
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	checkpoint "KeelDB/storage_engine/checkpoint_manager"
	diskmanager "KeelDB/storage_engine/disk_manager"
	"KeelDB/storage_engine/pager"
	txn "KeelDB/storage_engine/transaction_manager"
	"KeelDB/storage_engine/wal_manager"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
)

/*
This file contains the database bootstrap:

createDatabase is for a main file without a single complete page. It writes
a fresh header with a new database id, creates both trees (primary root on
page 1, secondary root on page 2) and checkpoints, so the file on disk is a
valid empty database before Open returns.

openDatabase reads the header, attaches the WAL, puts back the newest page
image batch and replays the log (recover_wal.go).
*/

func (se *Engine) createDatabase() error {
	walPath := WALPath(se.path)
	if err := se.discardStaleWAL(walPath); err != nil {
		return err
	}
	if err := se.CheckpointManager.Remove(); err != nil {
		return err
	}

	h := diskmanager.NewFileHeader()
	if err := se.attach(h); err != nil {
		return err
	}

	indexes, err := indexfile.CreateIndexes(se.Pager, se.opts.Index, se.opts.Logger)
	if err != nil {
		return err
	}
	se.IndexManager = indexes
	se.TxnManager = txn.NewTxnManager(1)

	if _, err := se.checkpointLocked(); err != nil {
		return fmt.Errorf("failed to write new database: %w", err)
	}
	se.log.Info("created database", "path", se.path, "id", h.DatabaseID)
	return nil
}

func (se *Engine) openDatabase() error {
	walPath := WALPath(se.path)

	h, headerErr := se.DiskManager.ReadHeader()
	dbID := h.DatabaseID
	if headerErr != nil {
		if !dberrors.IsCorruption(headerErr) {
			return headerErr
		}
		// a crash while the checkpoint wrote page 0 leaves it torn; the
		// log carries its image
		id, has, err := wal_manager.Inspect(walPath)
		if err != nil || !has {
			return headerErr
		}
		se.log.Warn("file header unreadable, restoring it from the WAL", "error", headerErr)
		dbID = id
	}

	wal, err := se.openWAL(dbID)
	if err != nil {
		return err
	}

	records, err := wal.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read WAL: %w", err)
	}

	restored, err := checkpoint.RestorePageImages(se.DiskManager, records)
	if err != nil {
		return err
	}
	if restored > 0 || headerErr != nil {
		if h, err = se.DiskManager.ReadHeader(); err != nil {
			return err
		}
		if h.DatabaseID != dbID {
			return dberrors.Corruptf(walPath, "restored header belongs to database %s, not %s", h.DatabaseID, dbID)
		}
		se.log.Info("restored pages from the last checkpoint batch", "pages", restored)
	}

	if !wal.HasRecords() {
		if err := wal.Rebase(h.CheckpointLSN); err != nil {
			return err
		}
	} else if wal.GetLastLSN() < h.CheckpointLSN {
		return dberrors.Corruptf(walPath, "log ends at LSN %d, before the checkpoint at %d", wal.GetLastLSN(), h.CheckpointLSN)
	}

	if err := se.attachPager(h); err != nil {
		return err
	}

	indexes, err := indexfile.OpenIndexes(se.Pager, h.PrimaryRoot, h.SecondaryRoot, se.opts.Index, se.opts.Logger)
	if err != nil {
		return err
	}
	se.IndexManager = indexes
	se.rowCount = h.RowCount

	nextTxn, err := se.recoverFromWAL(records)
	if err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}
	se.TxnManager = txn.NewTxnManager(nextTxn)
	se.log.Debug("transaction ids resume", "next", se.TxnManager.NextID())
	return nil
}

// attach opens the WAL for a new header and sets up the pager.
func (se *Engine) attach(h diskmanager.FileHeader) error {
	if _, err := se.openWAL(h.DatabaseID); err != nil {
		return err
	}
	return se.attachPager(h)
}

func (se *Engine) openWAL(id uuid.UUID) (*wal_manager.WALManager, error) {
	wal, err := wal_manager.OpenWAL(WALPath(se.path), id, wal_manager.Options{
		SyncMode: se.opts.SyncMode,
		Logger:   se.opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	se.WalManager = wal
	return wal, nil
}

func (se *Engine) attachPager(h diskmanager.FileHeader) error {
	p, err := pager.New(se.DiskManager, h.PageCount, h.FreeListHead, pager.Options{
		CacheSize: se.opts.CacheSize,
		Logger:    se.opts.Logger,
	})
	if err != nil {
		return err
	}
	p.SetLSNSource(se.WalManager)
	se.Pager = p
	se.header = h
	return nil
}

// discardStaleWAL clears a log left next to an empty main file. A log from
// an interrupted create holds nothing but its checkpoint; one holding row
// changes means the main file was lost and is refused.
func (se *Engine) discardStaleWAL(walPath string) error {
	id, has, err := wal_manager.Inspect(walPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case dberrors.IsCorruption(err):
		se.log.Warn("removing unreadable WAL next to an empty database", "path", walPath, "error", err)
		return removeFile(walPath)
	case err != nil:
		return err
	case !has:
		return removeFile(walPath)
	}

	records, err := se.readLog(walPath, id)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Kind.IsMutation() {
			return dberrors.Corruptf(walPath, "log holds row changes (LSN %d) but %s is empty", r.LSN, se.path)
		}
	}
	se.log.Warn("removing WAL of an interrupted create", "path", walPath, "records", len(records))
	return removeFile(walPath)
}

func (se *Engine) readLog(path string, id uuid.UUID) ([]wal_manager.Record, error) {
	wal, err := wal_manager.OpenWAL(path, id, wal_manager.Options{Logger: se.opts.Logger})
	if err != nil {
		return nil, err
	}
	defer wal.Close()
	return wal.ReadAll()
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return dberrors.NewIOError("remove", path, err)
	}
	return nil
}
