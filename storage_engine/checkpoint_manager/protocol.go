package checkpoint

import (
	"KeelDB/dberrors"
	diskmanager "KeelDB/storage_engine/disk_manager"
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

/*
Checkpoint protocol. The main file is only ever written here, and a crash at
any point leaves something recovery can finish:

	1. log CHECKPOINT_BEGIN                          → beginLSN
	2. stamp page 0 with checkpoint LSN = beginLSN   (dirty, in the pager)
	3. log every dirty page as PAGE_IMAGE, then CHECKPOINT_END, fsync
	4. write the dirty pages to the main file, fsync
	5. truncate the WAL (archive it first if asked)
	6. save checkpoint.json

	crash before 3 is durable   → main file untouched, WAL replays as usual
	crash during 4              → RestorePageImages rewrites the whole batch
	crash before 5 finishes     → same, the images are identical to the file

The caller guarantees no transaction is in flight.
*/

// Run takes a checkpoint.
func (cm *CheckpointManager) Run(p Params) (*Checkpoint, error) {
	start := time.Now()

	begin := &wal_manager.Record{Kind: types.OpCheckpointBegin}
	beginLSN, err := p.WAL.Append(begin)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: failed to log begin: %w", err)
	}

	if err := p.Stamp(beginLSN); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to stamp header: %w", err)
	}

	dirty := p.Pager.DirtyPages()
	batch := make([]*wal_manager.Record, 0, len(dirty)+1)
	for _, d := range dirty {
		batch = append(batch, &wal_manager.Record{
			Kind:  types.OpPageImage,
			Key:   pageKey(d.PageNumber),
			After: d.Data,
		})
	}
	batch = append(batch, &wal_manager.Record{Kind: types.OpCheckpointEnd, Key: lsnKey(beginLSN)})

	if _, err := p.WAL.AppendBatch(batch); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to log page images: %w", err)
	}
	if err := p.WAL.Sync(); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to sync WAL: %w", err)
	}

	if p.AfterLog != nil {
		if err := p.AfterLog(); err != nil {
			return nil, err
		}
	}

	if err := p.Pager.FlushAll(); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to flush pages: %w", err)
	}

	retired, archive, err := p.WAL.Truncate(p.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: failed to truncate WAL: %w", err)
	}

	cp := Checkpoint{
		LSN:          beginLSN,
		DatabaseID:   p.DatabaseID,
		RowCount:     p.RowCount,
		PagesWritten: len(dirty),
		WALRetired:   retired,
		Archive:      archive,
	}
	if p.PageCount != nil {
		cp.PageCount = p.PageCount()
	}
	if err := cm.SaveCheckpoint(cp); err != nil {
		// the checkpoint itself is complete; the manifest is advisory
		cm.log.Warn("failed to save checkpoint manifest", "error", err)
	}

	cm.log.Info("checkpoint complete",
		"lsn", beginLSN,
		"pages", len(dirty),
		"written", humanize.IBytes(uint64(len(dirty))*types.PageSize),
		"wal_retired", humanize.IBytes(uint64(retired)),
		"took", time.Since(start))
	return &cp, nil
}

// RestorePageImages writes the newest complete page image batch found in
// records straight to the main file and syncs it. A batch without its end
// marker is ignored: the main file was never touched for it. Returns the
// number of pages written.
func RestorePageImages(disk *diskmanager.DiskManager, records []wal_manager.Record) (int, error) {
	var (
		images  []wal_manager.Record
		current []wal_manager.Record
		open    bool
		begin   uint64
	)

	for _, r := range records {
		switch r.Kind {
		case types.OpCheckpointBegin:
			open, begin, current = true, r.LSN, current[:0]
		case types.OpPageImage:
			if open {
				current = append(current, r)
			}
		case types.OpCheckpointEnd:
			if !open {
				continue
			}
			if len(r.Key) != 8 || binary.LittleEndian.Uint64(r.Key) != begin {
				return 0, dberrors.Corruptf("wal", "checkpoint end %d does not match begin %d", r.LSN, begin)
			}
			images = append(images[:0], current...)
			open = false
		}
	}

	for _, img := range images {
		if len(img.Key) != 4 || len(img.After) != types.PageSize {
			return 0, dberrors.Corruptf("wal", "page image at LSN %d is malformed", img.LSN)
		}
		pn := types.PageNumber(binary.LittleEndian.Uint32(img.Key))
		if err := disk.WritePage(pn, img.After); err != nil {
			return 0, fmt.Errorf("failed to restore page %d: %w", pn, err)
		}
	}
	if len(images) > 0 {
		if err := disk.Sync(); err != nil {
			return 0, err
		}
	}
	return len(images), nil
}

func pageKey(pn types.PageNumber) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(pn))
	return b
}

func lsnKey(lsn uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, lsn)
	return b
}
