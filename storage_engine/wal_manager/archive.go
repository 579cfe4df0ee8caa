package wal_manager

import (
	"KeelDB/dberrors"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"
)

// ArchiveName is the file name used for the log retired at a checkpoint.
func ArchiveName(first, last uint64) string {
	return fmt.Sprintf("wal-%016x-%016x.xz", first, last)
}

// archiveSegment compresses the whole log file (header included) into dir.
// The archive is written to a temp file and renamed into place once synced.
func archiveSegment(seg *WALSegment, dir string, first, last uint64) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", dberrors.NewIOError("mkdir", dir, err)
	}

	path := filepath.Join(dir, ArchiveName(first, last))
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", dberrors.NewIOError("create", tmp, err)
	}

	err = func() error {
		xw, err := xz.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to create xz writer: %w", err)
		}
		if _, err := io.Copy(xw, seg.Reader(0)); err != nil {
			return dberrors.NewIOError("archive", path, err)
		}
		if err := xw.Close(); err != nil {
			return dberrors.NewIOError("archive", path, err)
		}
		if err := f.Sync(); err != nil {
			return dberrors.NewIOError("sync", tmp, err)
		}
		return nil
	}()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = dberrors.NewIOError("close", tmp, cerr)
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", dberrors.NewIOError("rename", path, err)
	}
	return path, nil
}

// Archive is a decoded archived log.
type Archive struct {
	DatabaseID uuid.UUID
	BaseLSN    uint64
	Records    []Record
}

// ReadArchive decompresses an archived log. Archives are complete files, so
// any bad or cut record is corruption.
func ReadArchive(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dberrors.NewIOError("open", path, err)
	}
	defer f.Close()

	xr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, dberrors.Corruptf(path, "not an xz stream: %v", err)
	}

	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(xr, buf); err != nil {
		return nil, dberrors.Corruptf(path, "short header: %v", err)
	}
	h, err := decodeFileHeader(path, buf)
	if err != nil {
		return nil, err
	}

	a := &Archive{DatabaseID: h.DatabaseID, BaseLSN: h.BaseLSN}
	fr := &frameReader{r: xr}
	prev := h.BaseLSN
	for {
		frame, _, err := fr.next()
		if errors.Is(err, io.EOF) {
			return a, nil
		}
		if err != nil {
			return nil, dberrors.Corruptf(path, "record after LSN %d: %v", prev, err)
		}
		if frame.LSN <= prev {
			return nil, dberrors.Corruptf(path, "LSN %d after %d", frame.LSN, prev)
		}
		prev = frame.LSN

		rec, err := decodePayload(path, frame.LSN, frame.Data)
		if err != nil {
			return nil, err
		}
		a.Records = append(a.Records, rec)
	}
}
