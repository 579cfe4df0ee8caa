package txn

import "KeelDB/types"

/*
Before the transaction gets completed, it is not sure whether it will actually be commited or not (rollbacked or aborted)

the Undo slice keeps every applied index change with its before and after image, so a rollback
can walk it backwards and put the trees back the way they were
*/

// RecordChange appends an applied change to the undo list.
func (txn *Transaction) RecordChange(index types.IndexID, kind types.OperationType, key, before, after []byte) {
	txn.Undo = append(txn.Undo, UndoEntry{
		Index:  index,
		Kind:   kind,
		Key:    key,
		Before: before,
		After:  after,
	})
}

// RollbackOrder calls fn for every recorded change, newest first, and
// stops at the first error.
func (txn *Transaction) RollbackOrder(fn func(UndoEntry) error) error {
	for i := len(txn.Undo) - 1; i >= 0; i-- {
		if err := fn(txn.Undo[i]); err != nil {
			return err
		}
	}
	return nil
}

// Touched reports whether the transaction changed anything.
func (txn *Transaction) Touched() bool {
	return len(txn.Undo) > 0
}
