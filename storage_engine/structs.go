package storageengine

import (
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	checkpoint "KeelDB/storage_engine/checkpoint_manager"
	diskmanager "KeelDB/storage_engine/disk_manager"
	"KeelDB/storage_engine/pager"
	txn "KeelDB/storage_engine/transaction_manager"
	"KeelDB/storage_engine/wal_manager"
	"log/slog"
	"sync"
)

// Engine is the transaction coordinator. It owns every manager of one
// database file and is the only thing callers talk to.
type Engine struct {
	DiskManager       *diskmanager.DiskManager
	Pager             *pager.Pager
	IndexManager      *indexfile.IndexFileManager
	WalManager        *wal_manager.WALManager
	TxnManager        *txn.TxnManager
	CheckpointManager *checkpoint.CheckpointManager

	path     string
	opts     Options
	header   diskmanager.FileHeader // as of the last checkpoint, roots refreshed on stamp
	rowCount uint32
	log      *slog.Logger

	// writer is held by an explicit transaction from Begin until Commit or
	// Rollback; mu guards the trees for the span of a single call.
	writer sync.Mutex
	mu     sync.Mutex

	closed bool
	// set when an in-memory rollback failed half way; the trees can no
	// longer be trusted until the file is reopened and recovered
	failed error

	// runs between logging the page images and writing the main file
	checkpointHook func() error
}

// Txn is an explicit transaction. It holds the engine's writer slot until
// Commit or Rollback.
type Txn struct {
	se   *Engine
	t    *txn.Transaction
	log  *slog.Logger
	done bool

	// set when a change was logged but not applied; Commit rolls back
	poisoned error
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Path            string
	DatabaseID      string
	Rows            uint32
	PageCount       uint32
	FileBytes       int64 // length of the main file, which lags PageCount until a checkpoint
	FreePages       int
	DirtyPages      int
	CacheHits       uint64
	CacheMisses     uint64
	CacheHitRatio   float64
	DiskReads       uint64
	PrimaryRoot     uint32
	SecondaryRoot   uint32
	PrimaryHeight   int
	SecondaryHeight int
	WALBytes        int64
	LastLSN         uint64
	CheckpointLSN   uint64
	SyncMode        string
	ActiveTxns      int
}

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	Rows             int
	IndexEntries     int
	OrphanEntries    []OrphanEntry // secondary entries without a matching row
	MissingEntries   []uint32      // rows without their secondary entry
	TrackedRows      uint32        // the engine's running row count
	FreePages        int
	StructureProblem error
}

// OrphanEntry is a secondary index entry whose row is gone or carries
// another email.
type OrphanEntry struct {
	Hash uint32
	ID   uint32
}

// OK reports whether the file passed every check.
func (r *VerifyReport) OK() bool {
	return r.StructureProblem == nil &&
		len(r.OrphanEntries) == 0 &&
		len(r.MissingEntries) == 0 &&
		r.Rows == r.IndexEntries &&
		uint32(r.Rows) == r.TrackedRows
}
