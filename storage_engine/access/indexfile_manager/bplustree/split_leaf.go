package bplus

import (
	"KeelDB/types"
	"fmt"
)

// splitLeaf moves the upper half of an overfull leaf into a new right
// sibling and pushes the sibling's first sort key into the parent.
func (t *BPlusTree) splitLeaf(leaf *Node, path []pathStep) error {
	mid := len(leaf.Keys) / 2

	right, err := t.newNode(types.PageKindLeaf)
	if err != nil {
		return fmt.Errorf("splitLeaf: failed to allocate right sibling: %w", err)
	}

	right.Keys = append(right.Keys, leaf.Keys[mid:]...)
	right.Values = append(right.Values, leaf.Values[mid:]...)
	right.Next = leaf.Next // right inherits leaf's old next pointer
	right.Prev = leaf.PageNum

	leaf.Keys = leaf.Keys[:mid]
	leaf.Values = leaf.Values[:mid]
	leaf.Next = right.PageNum
	leaf.IsRoot = false // a new root is created above it if it was the root

	if right.Next != types.InvalidPage {
		after, err := t.fetchNode(right.Next)
		if err != nil {
			return fmt.Errorf("splitLeaf: failed to fetch next sibling: %w", err)
		}
		after.Prev = right.PageNum
		if err := t.writeNode(after); err != nil {
			return err
		}
	}

	if err := t.writeNode(leaf); err != nil {
		return err
	}
	if err := t.writeNode(right); err != nil {
		return err
	}

	sepKey := t.entrySortKey(right, 0)
	return t.insertIntoParent(path, leaf.PageNum, sepKey, right.PageNum)
}
