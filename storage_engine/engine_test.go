package storageengine

import (
	"KeelDB/dberrors"
	"KeelDB/types"
	"errors"
	"os"
	"testing"
	"time"
)

func TestOpenCreatesDatabase(t *testing.T) {
	path := testPath(t)
	se := openTestEngine(t, path, testOptions())

	h := se.Header()
	if h.PrimaryRoot == types.InvalidPage || h.SecondaryRoot == types.InvalidPage {
		t.Fatalf("Expected both roots set, got %d and %d", h.PrimaryRoot, h.SecondaryRoot)
	}
	if h.CheckpointLSN == 0 {
		t.Errorf("Expected the create checkpoint to stamp the header")
	}
	for _, p := range []string{path, WALPath(path), ManifestPath(path)} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("Expected %s to exist: %v", p, err)
		}
	}

	cp, err := se.LastCheckpoint()
	if err != nil {
		t.Fatalf("Failed to load manifest: %v", err)
	}
	if cp.LSN != h.CheckpointLSN || cp.DatabaseID != h.DatabaseID.String() {
		t.Errorf("Expected manifest for LSN %d of %s, got %+v", h.CheckpointLSN, h.DatabaseID, cp)
	}

	id := h.DatabaseID
	if err := se.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	se = openTestEngine(t, path, testOptions())
	if se.Header().DatabaseID != id {
		t.Errorf("Expected database id %s after reopen, got %s", id, se.Header().DatabaseID)
	}
	if se.RowCount() != 0 {
		t.Errorf("Expected 0 rows, got %d", se.RowCount())
	}
	mustVerify(t, se)
}

func TestInsertLookupDelete(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())

	insertRows(t, se, 1, 50)

	row, err := se.LookupByID(7)
	if err != nil {
		t.Fatalf("Failed to look up row 7: %v", err)
	}
	if *row != testRow(7) {
		t.Errorf("Expected %+v, got %+v", testRow(7), *row)
	}

	err = se.InsertRow(types.Row{ID: 7, Username: "other", Email: "other@example.com"})
	if !dberrors.IsDuplicateKey(err) {
		t.Fatalf("Expected duplicate key error, got %v", err)
	}
	// the rejected insert must leave no trace in the secondary index
	rows, err := se.LookupByIndexedColumn(types.HashEmail("other@example.com"))
	if err != nil {
		t.Fatalf("Failed to look up by hash: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows for the rejected email, got %v", rows)
	}

	rows, err = se.LookupByIndexedColumn(testRow(12).EmailHash())
	if err != nil {
		t.Fatalf("Failed to look up by hash: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 12 {
		t.Errorf("Expected row 12 by hash, got %v", rows)
	}

	rows, err = se.LookupByEmail(testRow(12).Email)
	if err != nil {
		t.Fatalf("Failed to look up by email: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 12 {
		t.Errorf("Expected row 12 by email, got %v", rows)
	}

	if err := se.DeleteRow(12); err != nil {
		t.Fatalf("Failed to delete row 12: %v", err)
	}
	if _, err := se.LookupByID(12); !dberrors.IsNotFound(err) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
	if err := se.DeleteRow(12); !dberrors.IsNotFound(err) {
		t.Errorf("Expected not found deleting twice, got %v", err)
	}
	rows, err = se.LookupByIndexedColumn(testRow(12).EmailHash())
	if err != nil {
		t.Fatalf("Failed to look up by hash: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows after delete, got %v", rows)
	}

	if se.RowCount() != 49 {
		t.Errorf("Expected 49 rows, got %d", se.RowCount())
	}
	mustVerify(t, se)
}

func TestInsertRejectsOversizedColumns(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())

	long := make([]byte, types.UsernameSize+1)
	for i := range long {
		long[i] = 'a'
	}
	err := se.InsertRow(types.Row{ID: 1, Username: string(long), Email: "a@example.com"})
	if !errors.Is(err, dberrors.ErrInvalidInput) {
		t.Fatalf("Expected invalid input, got %v", err)
	}
	if se.WalManager.HasRecords() {
		t.Errorf("Expected nothing logged for a rejected row")
	}
}

func TestDuplicateEmailsShareHash(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())

	for id := uint32(1); id <= 5; id++ {
		if err := se.InsertRow(types.Row{ID: id * 10, Username: "dup", Email: "same@example.com"}); err != nil {
			t.Fatalf("Failed to insert row %d: %v", id*10, err)
		}
	}

	rows, err := se.LookupByEmail("same@example.com")
	if err != nil {
		t.Fatalf("Failed to look up by email: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("Expected 5 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.ID != uint32(i+1)*10 {
			t.Errorf("Expected rows in id order, got %d at %d", row.ID, i)
		}
	}
	mustVerify(t, se)
}

func TestUpdateMovesSecondaryEntry(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())
	insertRows(t, se, 1, 10)

	updated := types.Row{ID: 4, Username: "renamed", Email: "moved@example.com"}
	if err := se.UpdateRow(updated); err != nil {
		t.Fatalf("Failed to update row 4: %v", err)
	}

	row, err := se.LookupByID(4)
	if err != nil {
		t.Fatalf("Failed to look up row 4: %v", err)
	}
	if *row != updated {
		t.Errorf("Expected %+v, got %+v", updated, *row)
	}

	rows, err := se.LookupByIndexedColumn(testRow(4).EmailHash())
	if err != nil {
		t.Fatalf("Failed to look up old hash: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected the old hash to be gone, got %v", rows)
	}
	rows, err = se.LookupByEmail("moved@example.com")
	if err != nil {
		t.Fatalf("Failed to look up new email: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 4 {
		t.Errorf("Expected row 4 under the new email, got %v", rows)
	}

	err = se.UpdateRow(types.Row{ID: 99, Username: "ghost", Email: "ghost@example.com"})
	if !dberrors.IsNotFound(err) {
		t.Errorf("Expected not found updating a missing row, got %v", err)
	}
	mustVerify(t, se)
}

func TestLookupSkipsOrphanEntries(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())
	insertRows(t, se, 1, 3)

	hash := testRow(2).EmailHash()
	// an entry for a row that does not exist and one for a row with another email
	if err := se.IndexManager.Secondary().Insert(hash, 500); err != nil {
		t.Fatalf("Failed to plant orphan entry: %v", err)
	}
	if err := se.IndexManager.Secondary().Insert(hash, 3); err != nil {
		t.Fatalf("Failed to plant stale entry: %v", err)
	}

	rows, err := se.LookupByIndexedColumn(hash)
	if err != nil {
		t.Fatalf("Failed to look up by hash: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 2 {
		t.Errorf("Expected only row 2, got %v", rows)
	}

	rep, err := se.Verify()
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if rep.OK() {
		t.Fatalf("Expected verify to report the planted entries")
	}
	if len(rep.OrphanEntries) != 2 {
		t.Errorf("Expected 2 orphan entries, got %v", rep.OrphanEntries)
	}
}

func TestLookupMissingHashIsEmpty(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())
	insertRows(t, se, 1, 3)

	rows, err := se.LookupByIndexedColumn(types.HashEmail("nobody@example.com"))
	if err != nil {
		t.Fatalf("Failed to look up by hash: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("Expected an empty slice, got %#v", rows)
	}
}

func TestScanRangeAscending(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())

	for _, id := range []uint32{40, 3, 17, 25, 1, 12, 33, 8, 20, 15} {
		if err := se.InsertRow(testRow(id)); err != nil {
			t.Fatalf("Failed to insert row %d: %v", id, err)
		}
	}

	it := se.ScanRange(10, 25)
	defer it.Close()
	var got []uint32
	for it.Next() {
		got = append(got, it.Row().ID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}
	want := []uint32{12, 15, 17, 20, 25}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}

	all := se.ScanAll()
	defer all.Close()
	n := 0
	var prev uint32
	for all.Next() {
		if n > 0 && all.Row().ID <= prev {
			t.Fatalf("Expected ascending ids, got %d after %d", all.Row().ID, prev)
		}
		prev = all.Row().ID
		n++
	}
	if n != 10 {
		t.Errorf("Expected 10 rows, got %d", n)
	}
}

func TestExplicitTransactionRollback(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())
	insertRows(t, se, 1, 20)
	before := mustDigest(t, se)

	tx, err := se.Begin()
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	for id := uint32(100); id < 110; id++ {
		if err := tx.Insert(testRow(id)); err != nil {
			t.Fatalf("Failed to insert row %d: %v", id, err)
		}
	}
	if err := tx.Update(types.Row{ID: 5, Username: "changed", Email: "changed@example.com"}); err != nil {
		t.Fatalf("Failed to update row 5: %v", err)
	}
	if err := tx.Delete(6); err != nil {
		t.Fatalf("Failed to delete row 6: %v", err)
	}

	// reads see the open transaction
	if _, err := se.LookupByID(105); err != nil {
		t.Errorf("Expected row 105 visible inside the transaction: %v", err)
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}
	if after := mustDigest(t, se); after != before {
		t.Errorf("Expected rollback to restore the digest")
	}
	if _, err := se.LookupByID(105); !dberrors.IsNotFound(err) {
		t.Errorf("Expected row 105 gone, got %v", err)
	}
	row, err := se.LookupByID(6)
	if err != nil {
		t.Fatalf("Expected row 6 back: %v", err)
	}
	if *row != testRow(6) {
		t.Errorf("Expected %+v, got %+v", testRow(6), *row)
	}
	if se.RowCount() != 20 {
		t.Errorf("Expected 20 rows, got %d", se.RowCount())
	}
	mustVerify(t, se)

	if err := tx.Commit(); !errors.Is(err, dberrors.ErrTxnDone) {
		t.Errorf("Expected ErrTxnDone committing a rolled back transaction, got %v", err)
	}
	if err := tx.Insert(testRow(200)); !errors.Is(err, dberrors.ErrTxnDone) {
		t.Errorf("Expected ErrTxnDone writing to a rolled back transaction, got %v", err)
	}
}

func TestFailedWriteRollsBackOnCommit(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())
	insertRows(t, se, 1, 5)
	before := mustDigest(t, se)

	tx, err := se.Begin()
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	if err := tx.Insert(testRow(6)); err != nil {
		t.Fatalf("Failed to insert row 6: %v", err)
	}
	// a duplicate is refused before anything is logged, so the transaction stays usable
	if err := tx.Insert(testRow(3)); !dberrors.IsDuplicateKey(err) {
		t.Fatalf("Expected duplicate key, got %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if se.RowCount() != 6 {
		t.Errorf("Expected 6 rows, got %d", se.RowCount())
	}
	if mustDigest(t, se) == before {
		t.Errorf("Expected the committed insert to change the digest")
	}
	mustVerify(t, se)
}

func TestUntouchedTransactionLogsNothing(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())

	last := se.WalManager.GetLastLSN()
	tx, err := se.Begin()
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if got := se.WalManager.GetLastLSN(); got != last {
		t.Errorf("Expected no records for an empty transaction, last LSN moved %d -> %d", last, got)
	}
}

func TestCloseWaitsForOpenTransaction(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())

	tx, err := se.Begin()
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	if err := tx.Insert(testRow(1)); err != nil {
		t.Fatalf("Failed to insert row 1: %v", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- se.Close() }()

	select {
	case err := <-closed:
		t.Fatalf("Expected Close to wait for the open transaction, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Failed to close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Close still blocked after the commit")
	}
	if err := tx.Rollback(); !errors.Is(err, dberrors.ErrTxnDone) {
		t.Errorf("Expected ErrTxnDone from a deferred rollback, got %v", err)
	}
}

func TestReopenKeepsCommittedRows(t *testing.T) {
	path := testPath(t)
	se := openTestEngine(t, path, testOptions())
	insertRows(t, se, 1, 300)
	if err := se.DeleteRow(150); err != nil {
		t.Fatalf("Failed to delete row 150: %v", err)
	}
	want := mustDigest(t, se)
	if err := se.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	se = openTestEngine(t, path, testOptions())
	if got := mustDigest(t, se); got != want {
		t.Errorf("Expected digest %s after reopen, got %s", want, got)
	}
	if se.RowCount() != 299 {
		t.Errorf("Expected 299 rows, got %d", se.RowCount())
	}
	if se.WalManager.HasRecords() {
		t.Errorf("Expected a clean close to leave an empty WAL")
	}
	mustVerify(t, se)
}

func TestAutomaticCheckpoint(t *testing.T) {
	path := testPath(t)
	opts := testOptions()
	opts.CheckpointDirtyPages = 4
	se := openTestEngine(t, path, opts)

	start := se.Header().CheckpointLSN
	insertRows(t, se, 1, 200)

	if se.Header().CheckpointLSN <= start {
		t.Errorf("Expected an automatic checkpoint past LSN %d", start)
	}
	st, err := se.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if st.DirtyPages > opts.CheckpointDirtyPages+4 {
		t.Errorf("Expected dirty pages kept near the threshold, got %d", st.DirtyPages)
	}
}

func TestSmallNodesBuildDeepTrees(t *testing.T) {
	opts := testOptions()
	opts.Index.PrimaryLeafEntries = 4
	opts.Index.PrimaryInternalEntries = 4
	opts.Index.SecondaryLeafEntries = 4
	opts.Index.SecondaryInternalEntries = 4
	path := testPath(t)
	se := openTestEngine(t, path, opts)

	insertRows(t, se, 1, 500)
	for id := uint32(1); id <= 500; id += 3 {
		if err := se.DeleteRow(id); err != nil {
			t.Fatalf("Failed to delete row %d: %v", id, err)
		}
	}

	st, err := se.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if st.PrimaryHeight < 3 || st.SecondaryHeight < 3 {
		t.Errorf("Expected deep trees, got heights %d and %d", st.PrimaryHeight, st.SecondaryHeight)
	}
	rep := mustVerify(t, se)
	if rep.Rows != 333 {
		t.Errorf("Expected 333 rows, got %d", rep.Rows)
	}

	want := mustDigest(t, se)
	if err := se.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	se = openTestEngine(t, path, opts)
	if got := mustDigest(t, se); got != want {
		t.Errorf("Expected the same digest after reopen")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	se := openTestEngine(t, testPath(t), testOptions())
	insertRows(t, se, 1, 3)

	if err := se.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	if err := se.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}
	if _, err := se.LookupByID(1); !errors.Is(err, dberrors.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := se.InsertRow(testRow(9)); !errors.Is(err, dberrors.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := se.Begin(); !errors.Is(err, dberrors.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestSecondOpenIsLocked(t *testing.T) {
	path := testPath(t)
	openTestEngine(t, path, testOptions())

	if _, err := Open(path, testOptions()); !errors.Is(err, dberrors.ErrLocked) {
		t.Fatalf("Expected ErrLocked, got %v", err)
	}
}

func TestStats(t *testing.T) {
	path := testPath(t)
	se := openTestEngine(t, path, testOptions())
	insertRows(t, se, 1, 100)

	st, err := se.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if st.Rows != 100 {
		t.Errorf("Expected 100 rows, got %d", st.Rows)
	}
	if st.Path != path {
		t.Errorf("Expected path %s, got %s", path, st.Path)
	}
	if st.WALBytes == 0 || st.LastLSN <= st.CheckpointLSN {
		t.Errorf("Expected logged changes, got %d bytes, last LSN %d, checkpoint %d", st.WALBytes, st.LastLSN, st.CheckpointLSN)
	}
	if st.DirtyPages == 0 {
		t.Errorf("Expected dirty pages before a checkpoint")
	}
	if st.ActiveTxns != 0 {
		t.Errorf("Expected no active transactions, got %d", st.ActiveTxns)
	}

	if _, err := se.Checkpoint(); err != nil {
		t.Fatalf("Failed to checkpoint: %v", err)
	}
	st, err = se.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if st.FileBytes != int64(st.PageCount)*types.PageSize {
		t.Errorf("Expected %d pages on disk after a checkpoint, got %d bytes", st.PageCount, st.FileBytes)
	}
}
