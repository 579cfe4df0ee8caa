package bplus

import "KeelDB/types"

// insertIntoParent inserts sepKey and rightID next to leftID in the parent
// found on path. An overflowing parent splits and the loop carries its
// promoted key one level up; running out of path means the root split.
//
//	leaf overflow -> split leaf -> insert separator into parent
//	  parent fits      -> done
//	  parent overflows -> split parent, repeat one level up
//	  no parent left   -> new root, height + 1
func (t *BPlusTree) insertIntoParent(path []pathStep, leftID types.PageNumber, sepKey []byte, rightID types.PageNumber) error {
	for {
		if len(path) == 0 {
			return t.createNewRoot(leftID, sepKey, rightID)
		}

		step := path[len(path)-1]
		path = path[:len(path)-1]
		parent := step.node

		// Insert sepKey at idx, rightID at idx+1.
		parent.Keys = insert(parent.Keys, step.childIdx, sepKey)
		parent.Children = insert(parent.Children, step.childIdx+1, rightID)

		if len(parent.Keys) <= t.layout.InternalCapacity() {
			return t.writeNode(parent)
		}

		promoted, newRight, err := t.splitInternal(parent)
		if err != nil {
			return err
		}
		leftID, sepKey, rightID = parent.PageNum, promoted, newRight
	}
}
