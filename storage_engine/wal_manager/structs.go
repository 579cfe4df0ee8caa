package wal_manager

import (
	"KeelDB/types"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

const (
	FileHeaderSize   = 48
	RecordHeaderSize = 16
	FormatVersion    = 1

	payloadHeaderSize = 20
	// a page image is the largest record; anything far above it is garbage
	MaxRecordSize = 1 << 20
)

var Magic = [8]byte{'K', 'E', 'E', 'L', 'W', 'A', 'L', 0x00}

// SyncMode decides when appended records are fsynced.
type SyncMode int

const (
	// SyncEveryRecord fsyncs before every Append returns.
	SyncEveryRecord SyncMode = iota
	// SyncOnCommit fsyncs only on commit, abort and checkpoint-end records,
	// taking every earlier record of the transaction along (group commit).
	SyncOnCommit
)

type Options struct {
	SyncMode SyncMode
	Logger   *slog.Logger
}

type WALManager struct {
	segment *WALSegment
	dbID    uuid.UUID

	baseLSN    uint64 // every LSN in the file is above this
	firstLSN   uint64 // first record currently in the file, 0 when empty
	lastLSN    uint64 // last assigned
	flushedLSN uint64 // last known durable

	syncMode SyncMode
	log      *slog.Logger
	mu       sync.Mutex
}

// WALSegment is the file the log lives in. It knows bytes, not records.
type WALSegment struct {
	FilePath string
	File     *os.File
	Size     int64
	mu       sync.Mutex
}

// WALRecord is one frame as it sits in the file.
type WALRecord struct {
	LSN  uint64
	Data []byte
	CRC  uint32
}

// Record is the decoded payload of a frame.
//
// Mutation records carry the index they touch and the before/after images
// of the entry: for the primary index key = id, images = encoded rows; for
// the secondary index key = hash‖id and the images are empty markers
// (a non-empty after-image means the entry exists afterwards).
// Page image records carry the page number as key and the page as After.
type Record struct {
	LSN    uint64
	TxnID  uint64
	Kind   types.OperationType
	Index  types.IndexID
	Key    []byte
	Before []byte
	After  []byte
}

// fileHeader is the first FileHeaderSize bytes of the log:
//
//	magic (8) | version u32 | flags u32 | database id (16) | base LSN u64 | reserved (4) | crc32 u32
type fileHeader struct {
	Version    uint32
	Flags      uint32
	DatabaseID uuid.UUID
	BaseLSN    uint64
}
