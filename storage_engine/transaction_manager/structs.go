package txn

import (
	"KeelDB/types"
	"sync"
)

type TxnState uint8

const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnActive:
		return "active"
	case TxnCommitted:
		return "committed"
	case TxnAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type Transaction struct {
	ID    uint64
	State TxnState

	// Logical UNDO support, in the order the changes were applied
	Undo []UndoEntry

	FirstLSN uint64 // LSN of the begin record
	LastLSN  uint64
}

// UndoEntry is one applied index change. Undo restores Before where the
// change left After; empty Before means the entry did not exist, empty
// After means it was removed.
type UndoEntry struct {
	Index  types.IndexID
	Kind   types.OperationType
	Key    []byte // primary: id, secondary: hash‖id
	Before []byte
	After  []byte
}

type TxnManager struct {
	nextID     uint64
	activeTxns map[uint64]*Transaction // all currently active transactions
	mu         sync.RWMutex
}
