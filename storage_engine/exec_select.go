package storageengine

import (
	"KeelDB/dberrors"
	indexfile "KeelDB/storage_engine/access/indexfile_manager"
	bplus "KeelDB/storage_engine/access/indexfile_manager/bplustree"
	"KeelDB/types"
)

/*
Read paths. Reads take mu for the call only and see the changes of an
open transaction.

	LookupByID(id)                  → Primary.Get(id)
	LookupByIndexedColumn(hash)     → Secondary.Lookup(hash) → ids
	                                    └── for each: Primary.Get(id), keep if the email still hashes to hash
	ScanRange(low, high)            → primary leaf chain, ascending id
*/

// LookupByID returns the row with id, or a NotFoundError.
func (se *Engine) LookupByID(id uint32) (*types.Row, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.usableLocked(); err != nil {
		return nil, err
	}

	row, err := se.IndexManager.Primary().Get(id)
	if dberrors.IsNotFound(err) {
		return nil, dberrors.NewNotFoundError(types.IndexPrimary.String(), id)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LookupByIndexedColumn returns the rows whose email hashes to hash, in id
// order. Every candidate is re-read from the primary index; an entry whose
// row is gone or no longer matches is skipped. No match is an empty slice.
func (se *Engine) LookupByIndexedColumn(hash uint32) ([]types.Row, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.usableLocked(); err != nil {
		return nil, err
	}
	return se.lookupHashLocked(hash)
}

// LookupByEmail returns the rows carrying exactly email. Rows that only
// share its hash are filtered out.
func (se *Engine) LookupByEmail(email string) ([]types.Row, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.usableLocked(); err != nil {
		return nil, err
	}

	candidates, err := se.lookupHashLocked(types.HashEmail(email))
	if err != nil {
		return nil, err
	}
	rows := candidates[:0]
	for _, row := range candidates {
		if row.Email == email {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (se *Engine) lookupHashLocked(hash uint32) ([]types.Row, error) {
	ids, err := se.IndexManager.Secondary().Lookup(hash)
	if err != nil {
		return nil, err
	}

	primary := se.IndexManager.Primary()
	rows := make([]types.Row, 0, len(ids))
	for _, id := range ids {
		row, err := primary.Get(id)
		if dberrors.IsNotFound(err) {
			se.log.Warn("secondary entry without a row", "hash", hash, "id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if row.EmailHash() != hash {
			se.log.Warn("secondary entry points at a row with another email", "hash", hash, "id", id)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RowIterator walks rows in ascending id order. It holds no lock between
// calls to Next; writes made meanwhile are picked up from where it stands.
//
//	it := se.ScanRange(1, 100)
//	defer it.Close()
//	for it.Next() {
//		row := it.Row()
//	}
//	if err := it.Err(); err != nil { ... }
type RowIterator struct {
	se  *Engine
	it  *bplus.Iterator
	row types.Row
	err error
}

// ScanRange iterates the rows with low <= id <= high.
func (se *Engine) ScanRange(low, high uint32) *RowIterator {
	se.mu.Lock()
	defer se.mu.Unlock()

	ri := &RowIterator{se: se}
	if err := se.usableLocked(); err != nil {
		ri.err = err
		return ri
	}
	tree, err := se.IndexManager.Tree(types.IndexPrimary)
	if err != nil {
		ri.err = err
		return ri
	}
	ri.it = tree.Range(indexfile.EncodeKey(low), indexfile.EncodeKey(high))
	return ri
}

// ScanAll iterates every row.
func (se *Engine) ScanAll() *RowIterator {
	return se.ScanRange(0, ^uint32(0))
}

func (ri *RowIterator) Next() bool {
	if ri.err != nil || ri.it == nil {
		return false
	}

	ri.se.mu.Lock()
	defer ri.se.mu.Unlock()

	if err := ri.se.usableLocked(); err != nil {
		ri.err = err
		return false
	}
	if !ri.it.Next() {
		ri.err = ri.it.Err()
		return false
	}
	row, err := types.DecodeRow(ri.it.Value())
	if err != nil {
		ri.err = err
		return false
	}
	ri.row = row
	return true
}

func (ri *RowIterator) Row() types.Row { return ri.row }

func (ri *RowIterator) Err() error { return ri.err }

func (ri *RowIterator) Close() {
	if ri.it != nil {
		ri.it.Close()
	}
}
