package types

import "fmt"

// OperationType tags every WAL record.
type OperationType uint8

const (
	OpTxnBegin OperationType = iota + 1
	OpInsert
	OpUpdate
	OpDelete
	OpTxnCommit
	OpTxnAbort

	// checkpoint records; page images travel between the two markers
	OpCheckpointBegin
	OpPageImage
	OpCheckpointEnd
)

func (op OperationType) String() string {
	switch op {
	case OpTxnBegin:
		return "BEGIN"
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpTxnCommit:
		return "COMMIT"
	case OpTxnAbort:
		return "ABORT"
	case OpCheckpointBegin:
		return "CHECKPOINT_BEGIN"
	case OpPageImage:
		return "PAGE_IMAGE"
	case OpCheckpointEnd:
		return "CHECKPOINT_END"
	default:
		return fmt.Sprintf("OP(%d)", uint8(op))
	}
}

// IsMutation reports whether the record changes an index.
func (op OperationType) IsMutation() bool {
	return op == OpInsert || op == OpUpdate || op == OpDelete
}

// IsBoundary reports whether the record ends a unit of work that must be
// durable before the caller is told it succeeded.
func (op OperationType) IsBoundary() bool {
	return op == OpTxnCommit || op == OpTxnAbort || op == OpCheckpointEnd
}

func (op OperationType) Valid() bool {
	return op >= OpTxnBegin && op <= OpCheckpointEnd
}

// IndexID names which tree a mutation record targets.
type IndexID uint8

const (
	IndexNone IndexID = iota
	IndexPrimary
	IndexSecondary
)

func (id IndexID) String() string {
	switch id {
	case IndexNone:
		return "none"
	case IndexPrimary:
		return "primary"
	case IndexSecondary:
		return "secondary"
	default:
		return fmt.Sprintf("index(%d)", uint8(id))
	}
}
