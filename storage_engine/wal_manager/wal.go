package wal_manager

import (
	"KeelDB/dberrors"
	"KeelDB/logging"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

/*

WAL File
──────────────────────────────────────────────
| Header (48) | Record | Record | Record | ...  |
──────────────────────────────────────────────

Each Record:
────────────────────────────────────────────
| LSN (8) | LEN (4) | CRC (4) | DATA (LEN) |
────────────────────────────────────────────

	RecordHeaderSize = 16
	CRC = crc32 IEEE over LSN ‖ DATA

The header binds the log to one database (its id must equal the id in the
main file header) and carries the base LSN: every record in the file has a
larger LSN, so LSNs keep growing across truncations.

A record that is cut short, or whose checksum fails while being the last
thing in the file, is a torn tail from a crash mid-append and is discarded.
A bad record with more data behind it is corruption, and so is a length
above MaxRecordSize wherever it appears.

*/

func OpenWAL(path string, dbID uuid.UUID, opts Options) (*WALManager, error) {
	segment := InitializeWALSegment(path)
	if err := segment.Open(); err != nil {
		return nil, err
	}

	wal := &WALManager{
		segment:  segment,
		dbID:     dbID,
		syncMode: opts.SyncMode,
		log:      logging.WithComponent(opts.Logger, "wal"),
	}

	if segment.Size < FileHeaderSize {
		if segment.Size > 0 {
			wal.log.Warn("rewriting torn WAL header", "path", path, "bytes", segment.Size)
		}
		if err := wal.resetLocked(0); err != nil {
			segment.Close()
			return nil, err
		}
		return wal, nil
	}

	// recover existing ones
	if err := wal.recoverWALEntries(); err != nil {
		segment.Close()
		return nil, err
	}
	return wal, nil
}

// recoverWALEntries validates the header, finds the last good record and
// cuts off a torn tail.
func (w *WALManager) recoverWALEntries() error {
	path := w.segment.FilePath

	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(w.segment.Reader(0), buf); err != nil {
		return dberrors.NewIOError("read", path, err)
	}
	h, err := decodeFileHeader(path, buf)
	if err != nil {
		return err
	}
	if h.DatabaseID != w.dbID {
		return dberrors.Corruptf(path, "log belongs to database %s, not %s", h.DatabaseID, w.dbID)
	}
	w.baseLSN = h.BaseLSN

	res, err := w.scan(nil)
	if err != nil {
		return err
	}

	switch {
	case res.torn:
		w.log.Warn("discarding torn WAL tail",
			"offset", res.end,
			"bytes", w.segment.Size-res.end,
			"reason", res.reason)
		if err := w.segment.Truncate(res.end); err != nil {
			return err
		}
	case res.first == 0 && res.end > FileHeaderSize:
		// only records at or below the base: an interrupted truncate
		w.log.Warn("dropping retired WAL records", "bytes", res.end-FileHeaderSize)
		if err := w.segment.Truncate(FileHeaderSize); err != nil {
			return err
		}
	}

	w.firstLSN = res.first
	w.lastLSN = max(w.baseLSN, res.last)
	w.flushedLSN = w.lastLSN

	w.log.Info("recovered WAL",
		"records", res.records,
		"last_lsn", w.lastLSN,
		"size", humanize.IBytes(uint64(w.segment.Size)))
	return nil
}

type scanResult struct {
	end         int64 // offset just past the last good record
	first, last uint64
	records     int
	torn        bool
	reason      error
}

// scan walks every record after the header. Records at or below the base
// LSN are skipped.
func (w *WALManager) scan(fn func(Record) error) (scanResult, error) {
	path := w.segment.FilePath
	size := w.segment.Size
	res := scanResult{end: FileHeaderSize}
	fr := &frameReader{r: bufio.NewReaderSize(w.segment.Reader(FileHeaderSize), 64<<10)}
	prev := uint64(0)

	for {
		frame, span, err := fr.next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			tail := res.end+span >= size
			switch {
			case errors.Is(err, errTorn),
				errors.Is(err, errChecksum) && tail:
				res.torn, res.reason = true, err
				return res, nil
			// an oversized length is never a torn write
			case errors.Is(err, errBadLength), errors.Is(err, errChecksum):
				return res, dberrors.Corruptf(path, "record at offset %d: %v", res.end, err)
			default:
				return res, dberrors.NewIOError("read", path, err)
			}
		}

		if frame.LSN <= prev {
			return res, dberrors.Corruptf(path, "record at offset %d has LSN %d after %d", res.end, frame.LSN, prev)
		}
		prev = frame.LSN
		res.end += span

		if frame.LSN <= w.baseLSN {
			continue
		}

		rec, err := decodePayload(path, frame.LSN, frame.Data)
		if err != nil {
			return res, err
		}
		if res.first == 0 {
			res.first = rec.LSN
		}
		res.last = rec.LSN
		res.records++

		if fn != nil {
			if err := fn(rec); err != nil {
				return res, err
			}
		}
	}
}

// ReplayFromLSN calls applyFunc for every record with LSN >= startLSN in
// log order.
func (w *WALManager) ReplayFromLSN(startLSN uint64, applyFunc func(Record) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segment.File == nil {
		return dberrors.ErrClosed
	}

	res, err := w.scan(func(r Record) error {
		if r.LSN < startLSN {
			return nil
		}
		return applyFunc(r)
	})
	if err != nil {
		return err
	}
	if res.torn {
		return dberrors.Corruptf(w.segment.FilePath, "log changed under replay: %v", res.reason)
	}
	return nil
}

// ReadAll returns every live record.
func (w *WALManager) ReadAll() ([]Record, error) {
	var records []Record
	err := w.ReplayFromLSN(0, func(r Record) error {
		records = append(records, r)
		return nil
	})
	return records, err
}

// Append assigns the next LSN to rec, writes it and, depending on the sync
// mode, fsyncs before returning.
func (w *WALManager) Append(rec *Record) (uint64, error) {
	return w.AppendBatch([]*Record{rec})
}

// AppendBatch writes several records with a single write and at most one
// fsync. Returns the LSN of the last one.
func (w *WALManager) AppendBatch(recs []*Record) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segment.File == nil {
		return 0, dberrors.ErrClosed
	}
	if len(recs) == 0 {
		return w.lastLSN, nil
	}

	var buf []byte
	lsn := w.lastLSN
	needSync := w.syncMode == SyncEveryRecord
	for _, rec := range recs {
		data := rec.encodePayload()
		if len(data) > MaxRecordSize {
			return 0, dberrors.NewValidationError("wal", "record of %d bytes exceeds %d", len(data), MaxRecordSize)
		}
		lsn++
		frame := &WALRecord{LSN: lsn, Data: data, CRC: calculateCRC(lsn, data)}
		buf = append(buf, frame.Encode()...)
		needSync = needSync || rec.Kind.IsBoundary()
	}

	before := w.segment.Size
	if _, err := w.segment.Append(buf); err != nil {
		// drop whatever part of the write landed
		if terr := w.segment.Truncate(before); terr != nil {
			w.log.Error("failed to cut partial append", "error", terr)
		}
		return 0, err
	}

	for i, rec := range recs {
		rec.LSN = lsn - uint64(len(recs)-1-i)
	}
	if w.firstLSN == 0 {
		w.firstLSN = recs[0].LSN
	}
	w.lastLSN = lsn

	if needSync {
		if err := w.syncLocked(); err != nil {
			return lsn, err
		}
	}
	return lsn, nil
}

func (w *WALManager) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segment.File == nil {
		return dberrors.ErrClosed
	}
	return w.syncLocked()
}

func (w *WALManager) syncLocked() error {
	if w.flushedLSN == w.lastLSN {
		return nil
	}
	if err := w.segment.Sync(); err != nil {
		return err
	}
	w.flushedLSN = w.lastLSN
	return nil
}

// Truncate retires every record once a checkpoint made them redundant. With
// an archive directory the retired log is kept there xz compressed. Returns
// the number of bytes retired and the archive path, if any.
func (w *WALManager) Truncate(archiveDir string) (int64, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segment.File == nil {
		return 0, "", dberrors.ErrClosed
	}

	retired := w.segment.Size - FileHeaderSize
	if retired <= 0 {
		return 0, "", nil
	}

	var archive string
	if archiveDir != "" {
		var err error
		archive, err = archiveSegment(w.segment, archiveDir, w.firstLSN, w.lastLSN)
		if err != nil {
			return 0, "", fmt.Errorf("failed to archive WAL: %w", err)
		}
	}

	if err := w.syncLocked(); err != nil {
		return 0, "", err
	}
	if err := w.resetLocked(w.lastLSN); err != nil {
		return 0, "", err
	}

	w.log.Debug("truncated WAL", "retired", humanize.IBytes(uint64(retired)), "base_lsn", w.baseLSN)
	return retired, archive, nil
}

// Rebase raises the base LSN of an empty log so the next record is numbered
// above lsn. Used when the log was lost or recreated and the main file has
// already checkpointed past its numbering.
func (w *WALManager) Rebase(lsn uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segment.File == nil {
		return dberrors.ErrClosed
	}
	if w.firstLSN != 0 {
		return fmt.Errorf("cannot rebase a log holding records (first LSN %d)", w.firstLSN)
	}
	if lsn <= w.lastLSN {
		return nil
	}
	w.log.Warn("rebasing WAL", "from", w.lastLSN, "to", lsn)
	return w.resetLocked(lsn)
}

// resetLocked makes the file a bare header with the given base LSN. The
// header goes first: records left behind by a crash before the cut sit at
// or below the new base and are dropped on the next open.
func (w *WALManager) resetLocked(base uint64) error {
	h := fileHeader{Version: FormatVersion, DatabaseID: w.dbID, BaseLSN: base}
	if err := w.segment.WriteAt(encodeFileHeader(h), 0); err != nil {
		return err
	}
	if err := w.segment.Sync(); err != nil {
		return err
	}
	if err := w.segment.Truncate(FileHeaderSize); err != nil {
		return err
	}

	w.baseLSN = base
	w.firstLSN = 0
	w.lastLSN = max(w.lastLSN, base)
	w.flushedLSN = w.lastLSN
	return nil
}

// Close fsyncs and closes the log. Safe to call twice.
func (w *WALManager) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.segment.File == nil {
		return nil
	}
	if err := w.syncLocked(); err != nil {
		w.segment.Close()
		return err
	}
	return w.segment.Close()
}

func (w *WALManager) GetLastLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}

func (w *WALManager) GetFlushedLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushedLSN
}

// SizeBytes is the current file size including the header.
func (w *WALManager) SizeBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.segment.Size
}

// HasRecords reports whether any record is waiting for a checkpoint.
func (w *WALManager) HasRecords() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstLSN != 0
}

func (w *WALManager) Path() string { return w.segment.FilePath }

func (w *WALManager) DatabaseID() uuid.UUID { return w.dbID }

func (w *WALManager) SyncMode() SyncMode { return w.syncMode }

// Inspect reads the header of the log at path without opening it for
// writing. Returns the database id and whether any bytes follow the header.
// A missing file is reported as os.ErrNotExist.
func Inspect(path string) (dbID uuid.UUID, hasRecords bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return uuid.Nil, false, err
	}
	defer f.Close()

	buf := make([]byte, FileHeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, dberrors.Corruptf(path, "short WAL header: %d bytes", n)
	}
	h, err := decodeFileHeader(path, buf)
	if err != nil {
		return uuid.Nil, false, err
	}
	stat, err := f.Stat()
	if err != nil {
		return uuid.Nil, false, dberrors.NewIOError("stat", path, err)
	}
	return h.DatabaseID, stat.Size() > FileHeaderSize, nil
}
