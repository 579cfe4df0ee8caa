package checkpoint

import (
	"KeelDB/logging"
	diskmanager "KeelDB/storage_engine/disk_manager"
	"KeelDB/storage_engine/page"
	"KeelDB/storage_engine/pager"
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testDB struct {
	dir    string
	disk   *diskmanager.DiskManager
	pager  *pager.Pager
	wal    *wal_manager.WALManager
	header diskmanager.FileHeader
	cm     *CheckpointManager
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cp.db")

	disk, err := diskmanager.OpenDiskManager(path, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to open disk: %v", err)
	}
	h := diskmanager.NewFileHeader()
	if err := disk.WritePage(0, diskmanager.EncodeFileHeader(h)); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}

	wal, err := wal_manager.OpenWAL(path+"-wal", h.DatabaseID, wal_manager.Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("Failed to open WAL: %v", err)
	}
	p, err := pager.New(disk, 1, types.InvalidPage, pager.Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("Failed to create pager: %v", err)
	}
	p.SetLSNSource(wal)

	db := &testDB{
		dir:    dir,
		disk:   disk,
		pager:  p,
		wal:    wal,
		header: h,
		cm:     NewCheckpointManager(path+"-checkpoint.json", logging.Discard()),
	}
	t.Cleanup(func() {
		wal.Close()
		p.Close()
		disk.Close()
	})
	return db
}

func (db *testDB) params() Params {
	return Params{
		WAL:   db.wal,
		Pager: db.pager,
		Stamp: func(lsn uint64) error {
			h := db.header
			h.CheckpointLSN = lsn
			h.PageCount = db.pager.PageCount()
			return db.pager.WritePage(0, diskmanager.EncodeFileHeader(h))
		},
		DatabaseID: db.header.DatabaseID.String(),
		PageCount:  db.pager.PageCount,
	}
}

// writeLeaf dirties a fresh page with recognisable content.
func (db *testDB) writeLeaf(t *testing.T, fill byte) types.PageNumber {
	t.Helper()
	pn, err := db.pager.AllocatePage()
	if err != nil {
		t.Fatalf("Failed to allocate: %v", err)
	}
	buf := page.NewBuffer()
	page.EncodeHeader(buf, page.Header{Kind: types.PageKindLeaf})
	for i := page.HeaderSize; i < len(buf); i++ {
		buf[i] = fill
	}
	if err := db.pager.WritePage(pn, buf); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}
	return pn
}

func readDiskPage(t *testing.T, disk *diskmanager.DiskManager, pn types.PageNumber) []byte {
	t.Helper()
	buf := page.NewBuffer()
	if err := disk.ReadPage(pn, buf); err != nil {
		t.Fatalf("Failed to read page %d from disk: %v", pn, err)
	}
	return buf
}

func TestCheckpointWritesPagesAndTruncates(t *testing.T) {
	db := newTestDB(t)
	a := db.writeLeaf(t, 0xAA)
	b := db.writeLeaf(t, 0xBB)

	cp, err := db.cm.Run(db.params())
	if err != nil {
		t.Fatalf("Failed to checkpoint: %v", err)
	}
	if cp.PagesWritten != 3 { // header + two leaves
		t.Errorf("pages written = %d, want 3", cp.PagesWritten)
	}

	if got := readDiskPage(t, db.disk, a); got[page.HeaderSize] != 0xAA {
		t.Errorf("page %d not on disk", a)
	}
	if got := readDiskPage(t, db.disk, b); got[page.HeaderSize] != 0xBB {
		t.Errorf("page %d not on disk", b)
	}

	h, err := db.disk.ReadHeader()
	if err != nil {
		t.Fatalf("Failed to read header: %v", err)
	}
	if h.CheckpointLSN != cp.LSN || h.PageCount != 3 {
		t.Errorf("header checkpoint LSN %d page count %d, want %d / 3", h.CheckpointLSN, h.PageCount, cp.LSN)
	}

	if db.wal.HasRecords() {
		t.Error("WAL still holds records after checkpoint")
	}
	if db.pager.DirtyCount() != 0 {
		t.Errorf("%d dirty pages left", db.pager.DirtyCount())
	}

	saved, err := db.cm.LoadCheckpoint()
	if err != nil {
		t.Fatalf("Failed to load manifest: %v", err)
	}
	if saved.LSN != cp.LSN || saved.PagesWritten != 3 || saved.DatabaseID != db.header.DatabaseID.String() {
		t.Errorf("manifest = %+v", saved)
	}
}

func TestCrashAfterImagesIsRestorable(t *testing.T) {
	db := newTestDB(t)
	pn := db.writeLeaf(t, 0x5A)

	crash := errors.New("simulated crash")
	params := db.params()
	params.AfterLog = func() error { return crash }

	if _, err := db.cm.Run(params); !errors.Is(err, crash) {
		t.Fatalf("expected simulated crash, got %v", err)
	}

	// the main file has not seen the page
	if db.disk.NumPages() > uint32(pn) {
		t.Fatalf("page %d reached the main file before the flush", pn)
	}

	records, err := db.wal.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read WAL: %v", err)
	}
	n, err := RestorePageImages(db.disk, records)
	if err != nil {
		t.Fatalf("Failed to restore images: %v", err)
	}
	if n != 2 {
		t.Errorf("restored %d pages, want 2", n)
	}

	if got := readDiskPage(t, db.disk, pn); got[page.HeaderSize] != 0x5A {
		t.Error("restored page has wrong content")
	}
	h, _ := db.disk.ReadHeader()
	if h.CheckpointLSN == 0 {
		t.Error("restored header carries no checkpoint LSN")
	}
}

func TestIncompleteBatchIgnored(t *testing.T) {
	db := newTestDB(t)

	img := page.NewBuffer()
	page.EncodeHeader(img, page.Header{Kind: types.PageKindLeaf})
	records := []wal_manager.Record{
		{LSN: 1, Kind: types.OpCheckpointBegin},
		{LSN: 2, Kind: types.OpPageImage, Key: pageKey(5), After: img},
	}
	n, err := RestorePageImages(db.disk, records)
	if err != nil || n != 0 {
		t.Fatalf("incomplete batch restored %d pages, err %v", n, err)
	}

	// an end marker pointing at another begin is corruption
	records = append(records, wal_manager.Record{LSN: 3, Kind: types.OpCheckpointEnd, Key: lsnKey(9)})
	if _, err := RestorePageImages(db.disk, records); err == nil {
		t.Fatal("mismatched end marker accepted")
	}

	// the newest complete batch wins
	records = []wal_manager.Record{
		{LSN: 1, Kind: types.OpCheckpointBegin},
		{LSN: 2, Kind: types.OpPageImage, Key: pageKey(3), After: img},
		{LSN: 3, Kind: types.OpCheckpointEnd, Key: lsnKey(1)},
		{LSN: 4, Kind: types.OpCheckpointBegin},
		{LSN: 5, Kind: types.OpPageImage, Key: pageKey(4), After: img},
		{LSN: 6, Kind: types.OpPageImage, Key: pageKey(6), After: img},
		{LSN: 7, Kind: types.OpCheckpointEnd, Key: lsnKey(4)},
	}
	if n, err := RestorePageImages(db.disk, records); err != nil || n != 2 {
		t.Fatalf("restored %d pages, err %v, want 2", n, err)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	cm := NewCheckpointManager(filepath.Join(t.TempDir(), "db-checkpoint.json"), logging.Discard())

	// missing manifest is empty
	cp, err := cm.LoadCheckpoint()
	if err != nil || cp.LSN != 0 {
		t.Fatalf("missing manifest = %+v, %v", cp, err)
	}

	if err := cm.SaveCheckpoint(Checkpoint{LSN: 42, RowCount: 7}); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	cp, _ = cm.LoadCheckpoint()
	if cp.LSN != 42 || cp.RowCount != 7 || cp.Timestamp == 0 {
		t.Errorf("loaded %+v", cp)
	}

	// garbage manifest is ignored
	os.WriteFile(cm.Path(), []byte("{not json"), 0644)
	cp, err = cm.LoadCheckpoint()
	if err != nil || cp.LSN != 0 {
		t.Errorf("garbage manifest = %+v, %v", cp, err)
	}

	if err := cm.Remove(); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	if _, err := os.Stat(cm.Path()); !os.IsNotExist(err) {
		t.Error("manifest still exists")
	}
}
