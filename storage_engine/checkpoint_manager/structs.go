package checkpoint

import (
	"KeelDB/storage_engine/pager"
	"KeelDB/storage_engine/wal_manager"
	"log/slog"
	"sync"
)

// CheckpointManager runs checkpoints and keeps the JSON manifest of the
// last one next to the database file.
type CheckpointManager struct {
	checkpointPath string
	log            *slog.Logger
	mu             sync.RWMutex
}

// Checkpoint is the manifest written after a successful checkpoint. It is
// informational: recovery trusts the file header and the WAL, never this.
type Checkpoint struct {
	LSN          uint64 `json:"lsn"`
	Timestamp    int64  `json:"timestamp"` // unix seconds
	DatabaseID   string `json:"database_id"`
	PageCount    uint32 `json:"page_count"`
	RowCount     uint32 `json:"row_count"`
	PagesWritten int    `json:"pages_written"`
	WALRetired   int64  `json:"wal_bytes_retired"`
	Archive      string `json:"archive,omitempty"`
}

// Params wires one checkpoint run to the engine's components.
type Params struct {
	WAL   *wal_manager.WALManager
	Pager *pager.Pager

	// Stamp writes the file header page through the pager with beginLSN as
	// its checkpoint LSN, so the header travels in the page image batch.
	Stamp func(beginLSN uint64) error

	// AfterLog runs once the page images are durable in the WAL and before
	// the main file is touched. Optional.
	AfterLog func() error

	ArchiveDir string
	DatabaseID string
	PageCount  func() uint32
	RowCount   uint32
}
