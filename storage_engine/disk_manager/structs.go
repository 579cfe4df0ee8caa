package diskmanager

import (
	"KeelDB/types"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

// ############################################# FILE HEADER #############################################

// FileHeader is the content of page 0. It is the durable source of truth for
// the tree roots, the free list and the last checkpointed WAL position.
type FileHeader struct {
	Version       uint32
	PageSize      uint32
	PageCount     uint32           // logical page count including page 0
	FreeListHead  types.PageNumber // 0 when the free list is empty
	PrimaryRoot   types.PageNumber
	SecondaryRoot types.PageNumber
	CheckpointLSN uint64 // every WAL record up to this LSN is reflected in the file
	DatabaseID    uuid.UUID
	RowCount      uint32
}

// ############################################# DISK MANAGER #############################################

// DiskManager owns the main database file handle. It is the only place page
// numbers are turned into byte offsets.
type DiskManager struct {
	path     string
	file     *os.File
	numPages uint32 // pages physically present in the file
	log      *slog.Logger
	mu       sync.RWMutex
}
