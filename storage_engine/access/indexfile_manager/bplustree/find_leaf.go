package bplus

import (
	"KeelDB/dberrors"
	"KeelDB/types"
)

// findLeaf descends from the root to the leaf that owns sk. The returned
// path lists every internal node visited with the child index taken.
func (t *BPlusTree) findLeaf(sk []byte) (*Node, []pathStep, error) {
	path := make([]pathStep, 0, 4)
	pn := t.root

	for depth := 0; ; depth++ {
		if depth >= maxHeight {
			return nil, nil, dberrors.Corruptf(t.name, "tree deeper than %d levels", maxHeight)
		}

		node, err := t.fetchNode(pn)
		if err != nil {
			return nil, nil, err
		}
		if node.Kind == types.PageKindLeaf {
			return node, path, nil
		}

		i := childIndex(node, sk)
		path = append(path, pathStep{node: node, childIdx: i})
		pn = node.Children[i]
	}
}

// leftmostLeaf follows children[0] down to the first leaf.
func (t *BPlusTree) leftmostLeaf() (*Node, int, error) {
	pn := t.root
	for depth := 0; depth < maxHeight; depth++ {
		node, err := t.fetchNode(pn)
		if err != nil {
			return nil, 0, err
		}
		if node.isLeaf() {
			return node, depth + 1, nil
		}
		pn = node.Children[0]
	}
	return nil, 0, dberrors.Corruptf(t.name, "tree deeper than %d levels", maxHeight)
}
