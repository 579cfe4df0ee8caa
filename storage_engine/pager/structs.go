package pager

import (
	diskmanager "KeelDB/storage_engine/disk_manager"
	"KeelDB/types"
	"log/slog"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// ############################################# PAGER #############################################

// Pager hands out fixed size pages to the B+ trees and owns every page
// buffer in memory.
//
// Clean pages live in a ristretto cache and may be evicted at any time.
// Dirty pages live in their own table and are never evicted: they only reach
// the main file through Flush/FlushAll, which the checkpoint drives.
type Pager struct {
	disk  *diskmanager.DiskManager
	cache *ristretto.Cache[uint32, cachedPage]
	dirty map[types.PageNumber]*dirtyPage

	// bumped on every write; a cached copy with an older generation is stale
	gens map[types.PageNumber]uint64

	pageCount uint32
	freeHead  types.PageNumber

	wal       LSNSource
	diskReads uint64
	log       *slog.Logger
	mu        sync.Mutex
}

type Options struct {
	CacheSize int // clean pages kept in memory
	Logger    *slog.Logger
}

const DefaultCacheSize = 1024

type cachedPage struct {
	gen  uint64
	data []byte
}

type dirtyPage struct {
	data []byte
	lsn  uint64
}

// DirtyPage is a snapshot of a modified page handed to the checkpoint.
type DirtyPage struct {
	PageNumber types.PageNumber
	Data       []byte
	LSN        uint64
}

// Stats returns pager statistics
type Stats struct {
	PageCount    uint32
	DirtyPages   int
	FreeListHead types.PageNumber
	CacheHits    uint64
	CacheMisses  uint64
	HitRatio     float64
	DiskReads    uint64
}

// small interface so the pager doesn't import the whole wal package
type LSNSource interface {
	GetLastLSN() uint64    // LSN of the newest appended record
	GetFlushedLSN() uint64 // LSN up to which the log is durable
}
