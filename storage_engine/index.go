package storageengine

import (
	"KeelDB/dberrors"
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	bplus "KeelDB/storage_engine/access/indexfile_manager/bplustree"
	"KeelDB/types"
	"bytes"
	"fmt"
)

/*
This file contains the index level helpers shared by rollback, recovery and
Verify.

A change is described by the index it touches, the key, and the image of
the entry before and after it:

	primary    key = id (4 bytes BE)     image = encoded row, empty = no row
	secondary  key = hash‖id (8 bytes)   image = entryPresent, empty = no entry

applyImage moves an entry to an image whatever state it is in, so applying
the same image twice is harmless.
*/

var entryPresent = []byte{1}

// currentImage returns the image of the entry at key right now.
func (se *Engine) currentImage(index types.IndexID, key []byte) ([]byte, error) {
	switch index {
	case types.IndexPrimary:
		if len(key) != types.IDSize {
			return nil, dberrors.Corruptf("wal", "primary key is %d bytes", len(key))
		}
		raw, err := se.IndexManager.Primary().GetRaw(indexfile.DecodeKey(key))
		if dberrors.IsNotFound(err) {
			return nil, nil
		}
		return raw, err

	case types.IndexSecondary:
		hash, id, err := indexfile.SplitEntryKey(key)
		if err != nil {
			return nil, err
		}
		ok, err := se.IndexManager.Secondary().Has(hash, id)
		if err != nil || !ok {
			return nil, err
		}
		return entryPresent, nil
	}
	return nil, dberrors.Corruptf("wal", "change targets unknown %v", index)
}

// imageMatches reports whether the entry at key is currently image.
func (se *Engine) imageMatches(index types.IndexID, key, image []byte) (bool, error) {
	cur, err := se.currentImage(index, key)
	if err != nil {
		return false, err
	}
	return bytes.Equal(cur, image), nil
}

// applyImage puts the entry at key into state image and keeps the row
// count in step.
func (se *Engine) applyImage(index types.IndexID, key, image []byte) error {
	switch index {
	case types.IndexPrimary:
		if len(key) != types.IDSize {
			return dberrors.Corruptf("wal", "primary key is %d bytes", len(key))
		}
		primary := se.IndexManager.Primary()
		id := indexfile.DecodeKey(key)

		if len(image) == 0 {
			_, err := primary.Delete(id)
			if dberrors.IsNotFound(err) {
				return nil
			}
			if err == nil {
				se.rowCount--
			}
			return err
		}
		_, replaced, err := primary.PutRaw(id, image)
		if err == nil && !replaced {
			se.rowCount++
		}
		return err

	case types.IndexSecondary:
		hash, id, err := indexfile.SplitEntryKey(key)
		if err != nil {
			return err
		}
		secondary := se.IndexManager.Secondary()
		if len(image) == 0 {
			_, err := secondary.RemoveIfPresent(hash, id)
			return err
		}
		return secondary.Put(hash, id)
	}
	return dberrors.Corruptf("wal", "change targets unknown %v", index)
}

// ############################################# VERIFY #############################################

// Verify checks the structure of both trees and that they agree: every row
// has its secondary entry and every secondary entry points at a row whose
// email hashes to it. Structural damage is reported in the report, not as
// an error; the error is for I/O failures.
func (se *Engine) Verify() (*VerifyReport, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.usableLocked(); err != nil {
		return nil, err
	}

	rep := &VerifyReport{TrackedRows: se.rowCount}
	if err := se.IndexManager.Check(); err != nil {
		if !dberrors.IsCorruption(err) {
			return nil, err
		}
		rep.StructureProblem = err
		return rep, nil
	}

	primary := se.IndexManager.Primary()
	secondary := se.IndexManager.Secondary()

	var walkErr error
	err := primary.ScanRaw(func(id uint32, raw []byte) bool {
		rep.Rows++
		row, err := types.DecodeRow(raw)
		if err != nil {
			walkErr = err
			return false
		}
		ok, err := secondary.Has(row.EmailHash(), id)
		if err != nil {
			walkErr = err
			return false
		}
		if !ok {
			rep.MissingEntries = append(rep.MissingEntries, id)
		}
		return true
	})
	if err = firstErr(walkErr, err); err != nil {
		return nil, fmt.Errorf("verify rows: %w", err)
	}

	err = secondary.Scan(func(hash, id uint32) bool {
		rep.IndexEntries++
		row, err := primary.Get(id)
		if dberrors.IsNotFound(err) {
			rep.OrphanEntries = append(rep.OrphanEntries, OrphanEntry{Hash: hash, ID: id})
			return true
		}
		if err != nil {
			walkErr = err
			return false
		}
		if row.EmailHash() != hash {
			rep.OrphanEntries = append(rep.OrphanEntries, OrphanEntry{Hash: hash, ID: id})
		}
		return true
	})
	if err = firstErr(walkErr, err); err != nil {
		return nil, fmt.Errorf("verify secondary index: %w", err)
	}

	free, err := se.Pager.FreeListLength()
	if err != nil {
		if !dberrors.IsCorruption(err) {
			return nil, err
		}
		rep.StructureProblem = err
	}
	rep.FreePages = free
	return rep, nil
}

// WalkIndex visits every node of one tree level by level. Used by the
// inspect command.
func (se *Engine) WalkIndex(index types.IndexID, fn func(level int, n *bplus.Node) error) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.usableLocked(); err != nil {
		return err
	}
	tree, err := se.IndexManager.Tree(index)
	if err != nil {
		return err
	}
	return tree.Walk(fn)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
