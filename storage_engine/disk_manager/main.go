package diskmanager

import (
	"KeelDB/dberrors"
	"KeelDB/logging"
	"KeelDB/storage_engine/page"
	"KeelDB/types"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

/*
This is main file for disk manager
It owns:
the os.File of the main database file and its exclusive process lock
reading/writing whole pages at pageNumber * PageSize (ReadAt, WriteAt)
page checksums: sealed on every write, verified on every read
the encoding of the file header kept in page 0

It does not cache anything. The pager sits on top of it, serves hits from
memory and only comes down here on a miss or a checkpoint.
*/

// OpenDiskManager opens or creates the main file and takes an exclusive lock
// on it so a second process cannot open the same database.
func OpenDiskManager(path string, log *slog.Logger) (*DiskManager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberrors.NewIOError("open", path, err)
	}

	if err := lockFile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %s: %v", dberrors.ErrLocked, path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		unlockFile(file)
		file.Close()
		return nil, dberrors.NewIOError("stat", path, err)
	}

	dm := &DiskManager{
		path:     path,
		file:     file,
		numPages: uint32(stat.Size() / page.PageSize),
		log:      logging.WithComponent(log, "disk"),
	}
	if stat.Size()%page.PageSize != 0 {
		dm.log.Warn("main file size is not a multiple of the page size", "path", path, "size", stat.Size())
	}
	return dm, nil
}

// IsNew reports whether the file held no complete page when it was opened.
func (dm *DiskManager) IsNew() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.numPages == 0
}

func (dm *DiskManager) Path() string { return dm.path }

// NumPages returns the number of pages physically present in the file.
func (dm *DiskManager) NumPages() uint32 {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.numPages
}

// ReadPage fills buf with page pn and verifies its checksum.
func (dm *DiskManager) ReadPage(pn types.PageNumber, buf []byte) error {
	if len(buf) != page.PageSize {
		return fmt.Errorf("read buffer is %d bytes, want %d", len(buf), page.PageSize)
	}

	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if dm.file == nil {
		return dberrors.ErrClosed
	}
	if uint32(pn) >= dm.numPages {
		return dberrors.NewIOError("read", dm.path,
			fmt.Errorf("page %d out of range (file has %d pages)", pn, dm.numPages))
	}

	n, err := dm.file.ReadAt(buf, offsetOf(pn))
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		if errors.Is(err, io.EOF) {
			return dberrors.NewIOError("read", dm.path, fmt.Errorf("page %d truncated after %d bytes", pn, n))
		}
		return dberrors.NewIOError("read", dm.path, err)
	}

	if !page.Verify(buf) {
		return dberrors.PageCorruptf(dm.path, uint32(pn), "checksum mismatch")
	}
	return nil
}

// WritePage seals the checksum into buf and writes it at its offset. The
// write is not durable until Sync.
func (dm *DiskManager) WritePage(pn types.PageNumber, buf []byte) error {
	if len(buf) != page.PageSize {
		return fmt.Errorf("page data size %d does not match page size %d", len(buf), page.PageSize)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.file == nil {
		return dberrors.ErrClosed
	}

	page.Seal(buf)
	if _, err := dm.file.WriteAt(buf, offsetOf(pn)); err != nil {
		return dberrors.NewIOError("write", dm.path, fmt.Errorf("page %d: %w", pn, err))
	}

	// Update page count if we wrote beyond current end
	if uint32(pn) >= dm.numPages {
		dm.numPages = uint32(pn) + 1
	}
	return nil
}

// Sync issues the durability barrier for every write so far.
func (dm *DiskManager) Sync() error {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if dm.file == nil {
		return dberrors.ErrClosed
	}
	if err := dm.file.Sync(); err != nil {
		return dberrors.NewIOError("sync", dm.path, err)
	}
	return nil
}

// ReadHeader loads and validates page 0.
func (dm *DiskManager) ReadHeader() (FileHeader, error) {
	buf := page.NewBuffer()
	if err := dm.ReadPage(0, buf); err != nil {
		return FileHeader{}, err
	}
	return DecodeFileHeader(dm.path, buf)
}

// Size returns the current length of the main file in bytes.
func (dm *DiskManager) Size() int64 {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.file == nil {
		return 0
	}
	stat, err := dm.file.Stat()
	if err != nil {
		return int64(dm.numPages) * page.PageSize
	}
	return stat.Size()
}

// Close releases the lock and closes the file. It does not sync.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.file == nil {
		return nil // Already closed
	}

	unlockFile(dm.file)
	err := dm.file.Close()
	dm.file = nil
	if err != nil {
		return dberrors.NewIOError("close", dm.path, err)
	}
	return nil
}

// offsetOf is the single place a page number becomes a file offset.
func offsetOf(pn types.PageNumber) int64 {
	return int64(pn) * page.PageSize
}
