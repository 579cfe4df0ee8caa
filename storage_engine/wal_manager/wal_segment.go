package wal_manager

import (
	"KeelDB/dberrors"
	"io"
	"os"
)

/*
WALSegment is the raw file under the log. It knows bytes and offsets, not
records:

	Append  writes at Size and advances it; no fsync
	Sync    fsyncs; only after it is a record durable
	WriteAt rewrites the header at offset 0

The file is not opened with O_APPEND so the header can be rewritten on
truncate; positional writes at Size append just the same for one writer.
*/

func InitializeWALSegment(filePath string) *WALSegment {
	return &WALSegment{FilePath: filePath}
}

// Open opens or creates the segment file.
func (ws *WALSegment) Open() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		return nil
	}

	file, err := os.OpenFile(ws.FilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return dberrors.NewIOError("open", ws.FilePath, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return dberrors.NewIOError("stat", ws.FilePath, err)
	}

	ws.File = file
	ws.Size = stat.Size()
	return nil
}

// Append writes data at the end of the file and returns the bytes written.
func (ws *WALSegment) Append(data []byte) (int, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return 0, dberrors.ErrClosed
	}

	n, err := ws.File.WriteAt(data, ws.Size)
	if err != nil {
		return 0, dberrors.NewIOError("write", ws.FilePath, err)
	}

	ws.Size += int64(n)
	return n, nil
}

// WriteAt overwrites bytes inside the file; used for the header only.
func (ws *WALSegment) WriteAt(data []byte, off int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return dberrors.ErrClosed
	}
	if _, err := ws.File.WriteAt(data, off); err != nil {
		return dberrors.NewIOError("write", ws.FilePath, err)
	}
	if end := off + int64(len(data)); end > ws.Size {
		ws.Size = end
	}
	return nil
}

// Sync forces everything written so far to disk.
func (ws *WALSegment) Sync() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return dberrors.ErrClosed
	}

	if err := ws.File.Sync(); err != nil {
		return dberrors.NewIOError("sync", ws.FilePath, err)
	}
	return nil
}

// Truncate cuts the file to size bytes and fsyncs.
func (ws *WALSegment) Truncate(size int64) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File == nil {
		return dberrors.ErrClosed
	}
	if err := ws.File.Truncate(size); err != nil {
		return dberrors.NewIOError("truncate", ws.FilePath, err)
	}
	if err := ws.File.Sync(); err != nil {
		return dberrors.NewIOError("sync", ws.FilePath, err)
	}
	ws.Size = size
	return nil
}

// Reader returns a reader over [off, Size) as of now.
func (ws *WALSegment) Reader(off int64) io.Reader {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return io.NewSectionReader(ws.File, off, ws.Size-off)
}

// Close closes the segment file
func (ws *WALSegment) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.File != nil {
		err := ws.File.Close()
		ws.File = nil
		return err
	}
	return nil
}
