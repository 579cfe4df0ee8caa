package bplus

import (
	"KeelDB/types"
	"fmt"
)

// splitInternal splits a full internal node and returns the middle key,
// which moves up rather than being copied.
func (t *BPlusTree) splitInternal(node *Node) ([]byte, types.PageNumber, error) {
	// mid is the index of the key to promote
	mid := len(node.Keys) / 2
	promoteKey := node.Keys[mid]

	// Allocate right sibling.
	right, err := t.newNode(types.PageKindInternal)
	if err != nil {
		return nil, 0, fmt.Errorf("splitInternal: failed to allocate right sibling: %w", err)
	}

	right.Keys = append(right.Keys, node.Keys[mid+1:]...)
	right.Children = append(right.Children, node.Children[mid+1:]...)

	// Shrink left.
	node.Keys = node.Keys[:mid]
	node.Children = node.Children[:mid+1]
	node.IsRoot = false

	if err := t.writeNode(node); err != nil {
		return nil, 0, err
	}
	if err := t.writeNode(right); err != nil {
		return nil, 0, err
	}
	return promoteKey, right.PageNum, nil
}
