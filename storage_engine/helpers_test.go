package storageengine

import (
	"KeelDB/logging"
	"KeelDB/types"
	"fmt"
	"path/filepath"
	"testing"
)

// testOptions turns automatic checkpoints off so tests decide when the
// main file is written.
func testOptions() Options {
	opts := DefaultOptions()
	opts.Logger = logging.Discard()
	opts.CheckpointDirtyPages = 0
	opts.CheckpointWALBytes = 0
	return opts
}

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func openTestEngine(t *testing.T, path string, opts Options) *Engine {
	t.Helper()
	se, err := Open(path, opts)
	if err != nil {
		t.Fatalf("Failed to open engine: %v", err)
	}
	t.Cleanup(func() { se.Close() })
	return se
}

func testRow(id uint32) types.Row {
	return types.Row{
		ID:       id,
		Username: fmt.Sprintf("user%d", id),
		Email:    fmt.Sprintf("person%d@example.com", id),
	}
}

func insertRows(t *testing.T, se *Engine, from, to uint32) {
	t.Helper()
	for id := from; id <= to; id++ {
		if err := se.InsertRow(testRow(id)); err != nil {
			t.Fatalf("Failed to insert row %d: %v", id, err)
		}
	}
}

// insertBatch inserts rows from..to in one transaction.
func insertBatch(t *testing.T, se *Engine, from, to uint32) {
	t.Helper()
	tx, err := se.Begin()
	if err != nil {
		t.Fatalf("Failed to begin: %v", err)
	}
	for id := from; id <= to; id++ {
		if err := tx.Insert(testRow(id)); err != nil {
			t.Fatalf("Failed to insert row %d: %v", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit batch %d..%d: %v", from, to, err)
	}
}

func mustVerify(t *testing.T, se *Engine) *VerifyReport {
	t.Helper()
	rep, err := se.Verify()
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("verify failed: rows=%d entries=%d tracked=%d orphans=%v missing=%v structure=%v",
			rep.Rows, rep.IndexEntries, rep.TrackedRows, rep.OrphanEntries, rep.MissingEntries, rep.StructureProblem)
	}
	return rep
}

func mustDigest(t *testing.T, se *Engine) string {
	t.Helper()
	d, err := se.Digest()
	if err != nil {
		t.Fatalf("Failed to digest: %v", err)
	}
	return d
}

// crash drops the engine the way a killed process would: no checkpoint,
// every dirty page lost. Bytes already written to the WAL stay, as they
// would in the OS page cache. An open transaction is abandoned.
func crash(se *Engine) {
	se.mu.Lock()
	se.closed = true
	se.mu.Unlock()

	// release the writer slot whether or not a transaction holds it
	se.writer.TryLock()
	se.writer.Unlock()

	se.WalManager.Close()
	se.Pager.Close()
	se.DiskManager.Close()
}
