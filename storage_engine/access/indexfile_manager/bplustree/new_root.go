package bplus

import (
	"KeelDB/types"
	"fmt"
)

// createNewRoot creates a new root internal node with leftID and rightID
// as its two children, separated by promoteKey. The tree grows by one level.
func (t *BPlusTree) createNewRoot(leftID types.PageNumber, promoteKey []byte, rightID types.PageNumber) error {
	root, err := t.newNode(types.PageKindInternal)
	if err != nil {
		return fmt.Errorf("createNewRoot: failed to allocate new root: %w", err)
	}

	root.IsRoot = true
	root.Keys = append(root.Keys, promoteKey)
	root.Children = append(root.Children, leftID, rightID)

	if err := t.writeNode(root); err != nil {
		return err
	}

	t.log.Debug("root split", "old_root", leftID, "new_root", root.PageNum)
	t.root = root.PageNum
	return nil
}
