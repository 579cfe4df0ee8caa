package storageengine

import (
	"KeelDB/dberrors"
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	"KeelDB/storage_engine/wal_manager"
	"KeelDB/types"
)

/*
This file contains the insert row operation

	Engine.InsertRow(row)
	    └── autoCommit
	          ├── Txn.Insert(row)
	          │     ├── Primary.GetRaw(id)            DuplicateKeyError if taken, nothing logged
	          │     ├── WAL: BEGIN, INSERT primary (after = row), INSERT secondary (after = present)
	          │     ├── Primary.Insert(row)
	          │     └── Secondary.Insert(hash(email), id)
	          └── Txn.Commit()                        COMMIT + fsync
*/

// InsertRow adds row in a transaction of its own.
func (se *Engine) InsertRow(row types.Row) error {
	return se.autoCommit(func(tx *Txn) error {
		return tx.Insert(row)
	})
}

// Insert adds row inside the transaction. An id that is already taken
// fails with a DuplicateKeyError and leaves the transaction usable.
func (tx *Txn) Insert(row types.Row) error {
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

	primary := se.IndexManager.Primary()
	if _, err := primary.GetRaw(row.ID); err == nil {
		return dberrors.NewDuplicateKeyError(types.IndexPrimary.String(), row.ID)
	} else if !dberrors.IsNotFound(err) {
		return err
	}

	hash := row.EmailHash()
	pkey := indexfile.EncodeKey(row.ID)
	skey := indexfile.EntryKey(hash, row.ID)

	err = tx.logChanges(
		&wal_manager.Record{Kind: types.OpInsert, Index: types.IndexPrimary, Key: pkey, After: raw},
		&wal_manager.Record{Kind: types.OpInsert, Index: types.IndexSecondary, Key: skey, After: entryPresent},
	)
	if err != nil {
		return err
	}

	// primary first: a secondary hit on a missing row reads as not found
	if err := primary.Insert(row); err != nil {
		return tx.fail(err)
	}
	tx.t.RecordChange(types.IndexPrimary, types.OpInsert, pkey, nil, raw)
	se.rowCount++

	if err := se.IndexManager.Secondary().Insert(hash, row.ID); err != nil {
		return tx.fail(err)
	}
	tx.t.RecordChange(types.IndexSecondary, types.OpInsert, skey, nil, entryPresent)
	return nil
}
