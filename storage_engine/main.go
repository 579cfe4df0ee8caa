package storageengine

import (
	"KeelDB/dberrors"
	"KeelDB/logging"
	checkpoint "KeelDB/storage_engine/checkpoint_manager"
	diskmanager "KeelDB/storage_engine/disk_manager"
	"KeelDB/types"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

/*
The main file of the storage engine. Open wires every manager of one
database file together:

	path                    main file, 8KB pages, page 0 = file header
	path-wal                write-ahead log
	path-checkpoint.json    manifest of the last checkpoint (informational)

A fresh file gets a header and two empty trees. An existing file gets its
WAL replayed before the engine accepts any call (recover_wal.go).
*/

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	start := time.Now()

	disk, err := diskmanager.OpenDiskManager(path, opts.Logger)
	if err != nil {
		return nil, err
	}

	se := &Engine{
		DiskManager:       disk,
		CheckpointManager: checkpoint.NewCheckpointManager(ManifestPath(path), opts.Logger),
		path:              path,
		opts:              opts,
		log:               logging.WithComponent(opts.Logger, "engine"),
	}

	if disk.IsNew() {
		err = se.createDatabase()
	} else {
		err = se.openDatabase()
	}
	if err != nil {
		if cerr := errors.Join(se.closeFiles()...); cerr != nil {
			se.log.Warn("failed to close files after open error", "error", cerr)
		}
		return nil, err
	}

	se.log.Info("opened database",
		"path", path,
		"id", se.header.DatabaseID,
		"rows", se.rowCount,
		"pages", se.Pager.PageCount(),
		"size", humanize.IBytes(uint64(se.Pager.PageCount())*types.PageSize),
		"took", time.Since(start))
	return se, nil
}

// Close checkpoints and closes every file. It waits for an open explicit
// transaction to finish, so it never returns while one is abandoned.
// Calling it twice is a no-op.
func (se *Engine) Close() error {
	se.writer.Lock()
	defer se.writer.Unlock()
	se.mu.Lock()
	defer se.mu.Unlock()

	if se.closed {
		return nil
	}
	se.closed = true

	var errs []error
	if se.failed == nil && (se.WalManager.HasRecords() || se.Pager.DirtyCount() > 0) {
		if _, err := se.checkpointLocked(); err != nil {
			errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
		}
	} else if se.failed != nil {
		se.log.Warn("closing without checkpoint, recovery will run on next open", "cause", se.failed)
	}

	errs = append(errs, se.closeFiles()...)
	se.log.Info("closed database", "path", se.path)
	return errors.Join(errs...)
}

func (se *Engine) closeFiles() []error {
	var errs []error
	if se.WalManager != nil {
		if err := se.WalManager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if se.Pager != nil {
		se.Pager.Close()
	}
	if se.DiskManager != nil {
		if err := se.DiskManager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// usableLocked rejects calls on a closed or failed engine. Assumes mu is held.
func (se *Engine) usableLocked() error {
	if se.closed {
		return dberrors.ErrClosed
	}
	if se.failed != nil {
		return fmt.Errorf("engine needs to be reopened: %w", se.failed)
	}
	return nil
}

func (se *Engine) Path() string { return se.path }

// Header returns the file header as of the last checkpoint.
func (se *Engine) Header() diskmanager.FileHeader {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.header
}

// RowCount is the number of rows, uncommitted changes of an open
// transaction included.
func (se *Engine) RowCount() uint32 {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.rowCount
}

// LastCheckpoint reads the manifest of the most recent checkpoint.
func (se *Engine) LastCheckpoint() (*checkpoint.Checkpoint, error) {
	return se.CheckpointManager.LoadCheckpoint()
}

// Stats returns a snapshot of the engine's counters.
func (se *Engine) Stats() (Stats, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.usableLocked(); err != nil {
		return Stats{}, err
	}

	ps := se.Pager.GetStats()
	free, err := se.Pager.FreeListLength()
	if err != nil {
		return Stats{}, err
	}
	primary, secondary := se.IndexManager.Roots()

	st := Stats{
		Path:          se.path,
		DatabaseID:    se.header.DatabaseID.String(),
		Rows:          se.rowCount,
		PageCount:     ps.PageCount,
		FileBytes:     se.DiskManager.Size(),
		FreePages:     free,
		DirtyPages:    ps.DirtyPages,
		CacheHits:     ps.CacheHits,
		CacheMisses:   ps.CacheMisses,
		CacheHitRatio: ps.HitRatio,
		DiskReads:     ps.DiskReads,
		PrimaryRoot:   uint32(primary),
		SecondaryRoot: uint32(secondary),
		WALBytes:      se.WalManager.SizeBytes(),
		LastLSN:       se.WalManager.GetLastLSN(),
		CheckpointLSN: se.header.CheckpointLSN,
		SyncMode:      se.WalManager.SyncMode().String(),
		ActiveTxns:    se.TxnManager.ActiveCount(),
	}

	for _, idx := range []types.IndexID{types.IndexPrimary, types.IndexSecondary} {
		tree, err := se.IndexManager.Tree(idx)
		if err != nil {
			return Stats{}, err
		}
		h, err := tree.Height()
		if err != nil {
			return Stats{}, err
		}
		if idx == types.IndexPrimary {
			st.PrimaryHeight = h
		} else {
			st.SecondaryHeight = h
		}
	}
	return st, nil
}
