package storageengine

import (
	"KeelDB/dberrors"
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
)

/*
This file contains the Update row functionality
The row is replaced whole. The secondary entry only moves when the email
hash changes: an email edit that keeps the hash keeps the entry.
*/

// UpdateRow replaces the row with the same id in a transaction of its own.
func (se *Engine) UpdateRow(row types.Row) error {
	return se.autoCommit(func(tx *Txn) error {
		return tx.Update(row)
	})
}

// Update replaces the row with row.ID. A missing id is a NotFoundError.
func (tx *Txn) Update(row types.Row) error {
	se := tx.se
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := tx.usable(); err != nil {
		return err
	}

	raw, err := row.Encode()
	if err != nil {
		return err
	}

	// Read old row BEFORE overwriting, needed for the log and for rollback
	primary := se.IndexManager.Primary()
	oldRaw, err := primary.GetRaw(row.ID)
	if dberrors.IsNotFound(err) {
		return dberrors.NewNotFoundError(types.IndexPrimary.String(), row.ID)
	}
	if err != nil {
		return err
	}
	old, err := types.DecodeRow(oldRaw)
	if err != nil {
		return err
	}

	oldHash, newHash := old.EmailHash(), row.EmailHash()
	pkey := indexfile.EncodeKey(row.ID)
	oldKey := indexfile.EntryKey(oldHash, row.ID)
	newKey := indexfile.EntryKey(newHash, row.ID)
	moved := oldHash != newHash

	recs := []*wal_manager.Record{
		{Kind: types.OpUpdate, Index: types.IndexPrimary, Key: pkey, Before: oldRaw, After: raw},
	}
	if moved {
		recs = append(recs,
			&wal_manager.Record{Kind: types.OpDelete, Index: types.IndexSecondary, Key: oldKey, Before: entryPresent},
			&wal_manager.Record{Kind: types.OpInsert, Index: types.IndexSecondary, Key: newKey, After: entryPresent},
		)
	}
	if err := tx.logChanges(recs...); err != nil {
		return err
	}

	if _, _, err := primary.PutRaw(row.ID, raw); err != nil {
		return tx.fail(err)
	}
	tx.t.RecordChange(types.IndexPrimary, types.OpUpdate, pkey, oldRaw, raw)

	if !moved {
		return nil
	}

	secondary := se.IndexManager.Secondary()
	if err := secondary.Remove(oldHash, row.ID); err != nil {
		return tx.fail(err)
	}
	tx.t.RecordChange(types.IndexSecondary, types.OpDelete, oldKey, entryPresent, nil)

	if err := secondary.Insert(newHash, row.ID); err != nil {
		return tx.fail(err)
	}
	tx.t.RecordChange(types.IndexSecondary, types.OpInsert, newKey, nil, entryPresent)
	return nil
}
