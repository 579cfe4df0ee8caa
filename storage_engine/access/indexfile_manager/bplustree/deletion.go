package bplus

import (
	"KeelDB/dberrors"
	"fmt"
	"slices"
)

// Delete removes key from a unique tree and returns the value it held.
func (t *BPlusTree) Delete(key []byte) ([]byte, error) {
	if !t.layout.Unique {
		return nil, fmt.Errorf("delete %s: non-unique tree needs DeleteEntry", t.name)
	}
	if len(key) != t.layout.KeySize {
		return nil, fmt.Errorf("delete %s: key is %d bytes, want %d", t.name, len(key), t.layout.KeySize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.removeEntry(key, key)
}

// DeleteEntry removes the exact (key, value) pair. In a unique tree the
// value is ignored.
func (t *BPlusTree) DeleteEntry(key, value []byte) error {
	if len(key) != t.layout.KeySize || len(value) != t.layout.ValueSize {
		return fmt.Errorf("delete %s: entry sizes %d/%d, want %d/%d",
			t.name, len(key), len(value), t.layout.KeySize, t.layout.ValueSize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.removeEntry(key, t.sortKey(key, value))
	return err
}

func (t *BPlusTree) removeEntry(key, sk []byte) ([]byte, error) {
	leaf, path, err := t.findLeaf(sk)
	if err != nil {
		return nil, err
	}

	idx := t.leafLowerBound(leaf, sk)
	if idx >= len(leaf.Keys) || t.compareEntry(leaf, idx, sk) != 0 {
		return nil, dberrors.NewNotFoundError(t.name, FormatKey(key))
	}

	old := slices.Clone(leaf.Values[idx])
	leaf.Keys = remove(leaf.Keys, idx)
	leaf.Values = remove(leaf.Values, idx)

	return old, t.rebalance(leaf, path)
}

func (t *BPlusTree) minEntries(n *Node) int {
	if n.isLeaf() {
		return t.layout.LeafCapacity() / 2
	}
	return t.layout.InternalCapacity() / 2
}

// rebalance writes n and fixes underflow walking back up the path: borrow
// from a sibling with spare entries, else merge with it and repeat on the
// parent, which just lost a separator. An internal root left with a single
// child is replaced by that child.
func (t *BPlusTree) rebalance(n *Node, path []pathStep) error {
	for {
		if len(path) == 0 || len(n.Keys) >= t.minEntries(n) {
			return t.writeNode(n)
		}

		step := path[len(path)-1]
		path = path[:len(path)-1]
		parent, idx := step.node, step.childIdx

		// ── Try borrow from left sibling ──────────────────────────────────────────
		var left, right *Node
		var err error
		if idx > 0 {
			if left, err = t.fetchNode(parent.Children[idx-1]); err != nil {
				return err
			}
			if len(left.Keys) > t.minEntries(left) {
				t.borrowFromLeft(parent, idx, left, n)
				return t.writeAll(left, n, parent)
			}
		}

		// ── Try borrow from right sibling ─────────────────────────────────────────
		if idx < len(parent.Children)-1 {
			if right, err = t.fetchNode(parent.Children[idx+1]); err != nil {
				return err
			}
			if len(right.Keys) > t.minEntries(right) {
				t.borrowFromRight(parent, idx, right, n)
				return t.writeAll(right, n, parent)
			}
		}

		// ── Merge ─────────────────────────────────────────────────────────────────
		var survivor *Node
		switch {
		case left != nil:
			survivor = left
			err = t.merge(parent, idx-1, left, n)
		case right != nil:
			survivor = n
			err = t.merge(parent, idx, n, right)
		default:
			return dberrors.PageCorruptf(t.name, uint32(parent.PageNum), "internal node has a single child")
		}
		if err != nil {
			return err
		}

		if parent.IsRoot && len(parent.Keys) == 0 {
			// root collapse: height - 1
			survivor.IsRoot = true
			if err := t.writeNode(survivor); err != nil {
				return err
			}
			if err := t.freeNode(parent); err != nil {
				return err
			}
			t.log.Debug("root collapse", "old_root", parent.PageNum, "new_root", survivor.PageNum)
			t.root = survivor.PageNum
			return nil
		}

		n = parent
	}
}

func (t *BPlusTree) borrowFromLeft(parent *Node, idx int, left, n *Node) {
	last := len(left.Keys) - 1
	if n.isLeaf() {
		n.Keys = insert(n.Keys, 0, left.Keys[last])
		n.Values = insert(n.Values, 0, left.Values[last])
		left.Keys = left.Keys[:last]
		left.Values = left.Values[:last]
		parent.Keys[idx-1] = t.entrySortKey(n, 0)
		return
	}

	// rotate through the parent separator
	n.Keys = insert(n.Keys, 0, parent.Keys[idx-1])
	n.Children = insert(n.Children, 0, left.Children[last+1])
	parent.Keys[idx-1] = left.Keys[last]
	left.Keys = left.Keys[:last]
	left.Children = left.Children[:last+1]
}

func (t *BPlusTree) borrowFromRight(parent *Node, idx int, right, n *Node) {
	if n.isLeaf() {
		n.Keys = append(n.Keys, right.Keys[0])
		n.Values = append(n.Values, right.Values[0])
		right.Keys = remove(right.Keys, 0)
		right.Values = remove(right.Values, 0)
		parent.Keys[idx] = t.entrySortKey(right, 0)
		return
	}

	n.Keys = append(n.Keys, parent.Keys[idx])
	n.Children = append(n.Children, right.Children[0])
	parent.Keys[idx] = right.Keys[0]
	right.Keys = remove(right.Keys, 0)
	right.Children = remove(right.Children, 0)
}

// merge folds r into l, drops separator sepIdx from the parent and frees r.
// The parent is not written; the caller decides what happens to it next.
func (t *BPlusTree) merge(parent *Node, sepIdx int, l, r *Node) error {
	if l.isLeaf() {
		l.Keys = append(l.Keys, r.Keys...)
		l.Values = append(l.Values, r.Values...)
		l.Next = r.Next
		if r.Next != 0 {
			after, err := t.fetchNode(r.Next)
			if err != nil {
				return fmt.Errorf("merge: failed to fetch next sibling: %w", err)
			}
			after.Prev = l.PageNum
			if err := t.writeNode(after); err != nil {
				return err
			}
		}
	} else {
		l.Keys = append(l.Keys, parent.Keys[sepIdx])
		l.Keys = append(l.Keys, r.Keys...)
		l.Children = append(l.Children, r.Children...)
	}

	parent.Keys = remove(parent.Keys, sepIdx)
	parent.Children = remove(parent.Children, sepIdx+1)

	if err := t.writeNode(l); err != nil {
		return err
	}
	return t.freeNode(r)
}

func (t *BPlusTree) writeAll(nodes ...*Node) error {
	for _, n := range nodes {
		if err := t.writeNode(n); err != nil {
			return err
		}
	}
	return nil
}
