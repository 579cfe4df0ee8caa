package checkpoint

import (
	"KeelDB/dberrors"
	"KeelDB/logging"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

/*
After a checkpoint the main file alone reflects every committed change and
the WAL is cut back to its header. The manifest (<db>-checkpoint.json) says
when that happened and what it cost:

	{"lsn": 812, "timestamp": 1760700000, "database_id": "...", "page_count": 310, ...}

It is for people and the stats command. Recovery never reads it.
*/

// NewCheckpointManager keeps its manifest at manifestPath.
func NewCheckpointManager(manifestPath string, log *slog.Logger) *CheckpointManager {
	return &CheckpointManager{
		checkpointPath: manifestPath,
		log:            logging.WithComponent(log, "checkpoint"),
	}
}

func (cm *CheckpointManager) Path() string { return cm.checkpointPath }

// SaveCheckpoint replaces the manifest. Readers see the old or the new one,
// never a mix.
func (cm *CheckpointManager) SaveCheckpoint(cp Checkpoint) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cp.Timestamp == 0 {
		cp.Timestamp = time.Now().Unix()
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := writeFileAtomic(cm.checkpointPath, data); err != nil {
		return err
	}

	cm.log.Debug("checkpoint manifest saved", "lsn", cp.LSN)
	return nil
}

// writeFileAtomic writes data to path.tmp, fsyncs it, renames it over path
// and fsyncs the directory.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return dberrors.NewIOError("create", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return dberrors.NewIOError("write", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return dberrors.NewIOError("fsync", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return dberrors.NewIOError("close", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return dberrors.NewIOError("rename", path, err)
	}

	// best effort: the rename itself is durable once the directory is
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

// LoadCheckpoint reads the manifest. A missing or unreadable one reads as
// empty (LSN 0).
func (cm *CheckpointManager) LoadCheckpoint() (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	data, err := os.ReadFile(cm.checkpointPath)
	if os.IsNotExist(err) {
		return &Checkpoint{}, nil
	}
	if err != nil {
		return nil, dberrors.NewIOError("read", cm.checkpointPath, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		cm.log.Warn("checkpoint manifest unreadable, ignoring it", "path", cm.checkpointPath, "error", err)
		return &Checkpoint{}, nil
	}
	return &cp, nil
}

// Remove deletes the manifest of a previous database at the same path.
func (cm *CheckpointManager) Remove() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.Remove(cm.checkpointPath); err != nil && !os.IsNotExist(err) {
		return dberrors.NewIOError("remove", cm.checkpointPath, err)
	}
	return nil
}
