package bplus

import (
	"KeelDB/dberrors"
	"KeelDB/types"
	"bytes"
)

/*
Read only helpers used by tests, Verify and the inspect command.
*/

// Height returns the number of levels, 1 for a lone root leaf.
func (t *BPlusTree) Height() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, h, err := t.leftmostLeaf()
	return h, err
}

// Count returns the number of entries by walking the leaf chain.
func (t *BPlusTree) Count() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf, _, err := t.leftmostLeaf()
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		total += len(leaf.Keys)
		if leaf.Next == types.InvalidPage {
			return total, nil
		}
		if leaf, err = t.fetchNode(leaf.Next); err != nil {
			return total, err
		}
	}
}

// Walk visits every node level by level, left to right.
func (t *BPlusTree) Walk(fn func(level int, n *Node) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	level := []types.PageNumber{t.root}
	for depth := 0; len(level) > 0; depth++ {
		if depth >= maxHeight {
			return dberrors.Corruptf(t.name, "tree deeper than %d levels", maxHeight)
		}
		var next []types.PageNumber
		for _, pn := range level {
			n, err := t.fetchNode(pn)
			if err != nil {
				return err
			}
			if err := fn(depth, n); err != nil {
				return err
			}
			next = append(next, n.Children...)
		}
		level = next
	}
	return nil
}

// Check verifies the structural invariants of the whole tree:
//   - sort keys strictly ascending inside every node
//   - every sort key within the separator bounds of its subtree
//   - every non-root node at least half full, none above capacity
//   - all leaves at the same depth
//   - the sibling chain visits exactly the leaves, in order, with matching
//     prev links
func (t *BPlusTree) Check() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c := &checker{tree: t, leafDepth: -1}
	if err := c.walk(t.root, nil, nil, 0, true); err != nil {
		return err
	}
	return c.checkChain()
}

type checker struct {
	tree      *BPlusTree
	leafDepth int
	leaves    []types.PageNumber
}

func (c *checker) fail(pn types.PageNumber, format string, args ...any) error {
	return dberrors.PageCorruptf(c.tree.name, uint32(pn), format, args...)
}

func (c *checker) walk(pn types.PageNumber, lo, hi []byte, depth int, isRoot bool) error {
	t := c.tree
	if depth >= maxHeight {
		return c.fail(pn, "tree deeper than %d levels", maxHeight)
	}

	n, err := t.fetchNode(pn)
	if err != nil {
		return err
	}
	if n.IsRoot != isRoot {
		return c.fail(pn, "root flag is %v, want %v", n.IsRoot, isRoot)
	}

	count := len(n.Keys)
	capacity := t.layout.InternalCapacity()
	if n.isLeaf() {
		capacity = t.layout.LeafCapacity()
	}
	if count > capacity {
		return c.fail(pn, "%d entries exceed capacity %d", count, capacity)
	}
	if !isRoot && count < t.minEntries(n) {
		return c.fail(pn, "%d entries below minimum %d", count, t.minEntries(n))
	}

	sortKeys := n.Keys
	if n.isLeaf() && !t.layout.Unique {
		sortKeys = make([][]byte, count)
		for i := range n.Keys {
			sortKeys[i] = t.entrySortKey(n, i)
		}
	}
	for i, sk := range sortKeys {
		if i > 0 && bytes.Compare(sortKeys[i-1], sk) >= 0 {
			return c.fail(pn, "entry %d is not above entry %d", i, i-1)
		}
		if lo != nil && bytes.Compare(sk, lo) < 0 {
			return c.fail(pn, "entry %d below subtree lower bound", i)
		}
		if hi != nil && bytes.Compare(sk, hi) >= 0 {
			return c.fail(pn, "entry %d not below subtree upper bound", i)
		}
	}

	if n.isLeaf() {
		if c.leafDepth == -1 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return c.fail(pn, "leaf at depth %d, others at %d", depth, c.leafDepth)
		}
		c.leaves = append(c.leaves, pn)
		return nil
	}

	if isRoot && count == 0 {
		return c.fail(pn, "internal root has no separators")
	}
	for i, child := range n.Children {
		childLo, childHi := lo, hi
		if i > 0 {
			childLo = n.Keys[i-1]
		}
		if i < count {
			childHi = n.Keys[i]
		}
		if err := c.walk(child, childLo, childHi, depth+1, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) checkChain() error {
	t := c.tree
	prev := types.InvalidPage
	pn := c.leaves[0]

	for i := 0; ; i++ {
		if i >= len(c.leaves) || c.leaves[i] != pn {
			return c.fail(pn, "sibling chain diverges from tree order at leaf %d", i)
		}
		n, err := t.fetchNode(pn)
		if err != nil {
			return err
		}
		if n.Prev != prev {
			return c.fail(pn, "prev link %d, want %d", n.Prev, prev)
		}
		if n.Next == types.InvalidPage {
			if i != len(c.leaves)-1 {
				return c.fail(pn, "sibling chain ends after %d of %d leaves", i+1, len(c.leaves))
			}
			return nil
		}
		prev, pn = pn, n.Next
	}
}
