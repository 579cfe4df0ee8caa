package storageengine

import (
	"KeelDB/dberrors"
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
)

// DeleteRow removes the row with id in a transaction of its own.
func (se *Engine) DeleteRow(id uint32) error {
	return se.autoCommit(func(tx *Txn) error {
		return tx.Delete(id)
	})
}

// Delete removes the row with id and its secondary entry. A missing id is a
// NotFoundError.
func (tx *Txn) Delete(id uint32) error {
	se := tx.se
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := tx.usable(); err != nil {
		return err
	}

	primary := se.IndexManager.Primary()
	oldRaw, err := primary.GetRaw(id)
	if dberrors.IsNotFound(err) {
		return dberrors.NewNotFoundError(types.IndexPrimary.String(), id)
	}
	if err != nil {
		return err
	}
	old, err := types.DecodeRow(oldRaw)
	if err != nil {
		return err
	}

	hash := old.EmailHash()
	pkey := indexfile.EncodeKey(id)
	skey := indexfile.EntryKey(hash, id)

	err = tx.logChanges(
		&wal_manager.Record{Kind: types.OpDelete, Index: types.IndexPrimary, Key: pkey, Before: oldRaw},
		&wal_manager.Record{Kind: types.OpDelete, Index: types.IndexSecondary, Key: skey, Before: entryPresent},
	)
	if err != nil {
		return err
	}

	if _, err := primary.Delete(id); err != nil {
		return tx.fail(err)
	}
	tx.t.RecordChange(types.IndexPrimary, types.OpDelete, pkey, oldRaw, nil)
	se.rowCount--

	if err := se.IndexManager.Secondary().Remove(hash, id); err != nil {
		return tx.fail(err)
	}
	tx.t.RecordChange(types.IndexSecondary, types.OpDelete, skey, entryPresent, nil)
	return nil
}
