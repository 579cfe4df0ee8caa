package storageengine

import (
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	"KeelDB/storage_engine/pager"
	"KeelDB/storage_engine/wal_manager"
	"log/slog"
)

type Options struct {
	// CacheSize is the number of clean pages the pager keeps in memory.
	CacheSize int

	SyncMode wal_manager.SyncMode

	// A commit triggers a checkpoint once either threshold is crossed.
	// Zero disables that trigger.
	CheckpointDirtyPages int
	CheckpointWALBytes   int64

	// ArchiveDir keeps every retired WAL xz compressed. Empty discards it.
	ArchiveDir string

	Logger *slog.Logger

	// Index narrows node capacities. Tests use it to build deep trees from
	// few rows; production leaves it zero.
	Index indexfile.Options
}

func DefaultOptions() Options {
	return Options{
		CacheSize:            pager.DefaultCacheSize,
		SyncMode:             wal_manager.SyncEveryRecord,
		CheckpointDirtyPages: 1024,
		CheckpointWALBytes:   16 << 20,
	}
}

func (o Options) withDefaults() Options {
	if o.CacheSize <= 0 {
		o.CacheSize = pager.DefaultCacheSize
	}
	return o
}

// WALPath and ManifestPath name the files kept next to the main file.
func WALPath(path string) string      { return path + "-wal" }
func ManifestPath(path string) string { return path + "-checkpoint.json" }
