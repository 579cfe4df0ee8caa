package bplus

import (
	"KeelDB/types"
	"bytes"
	"slices"
)

// Iterator provides a forward-only range scan over the leaves, following
// the sibling links left to right.
//
// It holds no lock and no page between calls. Each Next takes the tree's
// read lock for one step; if the tree changed since the previous step the
// iterator re-descends from the root and resumes after the last entry it
// returned, so a scan interleaved with writes never yields an entry twice.
type Iterator struct {
	tree      *BPlusTree
	low, high []byte // inclusive key bounds, nil = open

	leaf    *Node
	pos     int
	version uint64
	last    []byte // sort key of the last returned entry

	key, value []byte
	err        error
	done       bool
}

// Range returns an iterator over keys in [low, high]. Either bound may be
// nil. Re-issuing Range restarts the scan.
func (t *BPlusTree) Range(low, high []byte) *Iterator {
	return &Iterator{
		tree: t,
		low:  slices.Clone(low),
		high: slices.Clone(high),
	}
}

// Next advances the iterator. Returns false when exhausted or on error.
func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	t := it.tree
	t.mu.RLock()
	defer t.mu.RUnlock()

	if it.leaf == nil || it.version != t.version {
		if err := it.seek(); err != nil {
			it.err = err
			return false
		}
	}

	for {
		if it.pos >= len(it.leaf.Keys) {
			if it.leaf.Next == types.InvalidPage {
				it.finish()
				return false
			}
			next, err := t.fetchNode(it.leaf.Next)
			if err != nil {
				it.err = err
				return false
			}
			it.leaf, it.pos = next, 0
			continue
		}

		k := it.leaf.Keys[it.pos]
		if it.high != nil && bytes.Compare(k, it.high) > 0 {
			it.finish()
			return false
		}

		it.key = slices.Clone(k)
		it.value = slices.Clone(it.leaf.Values[it.pos])
		it.last = t.entrySortKey(it.leaf, it.pos)
		it.pos++
		return true
	}
}

// seek positions the iterator from the root. Assumes the read lock is held.
func (it *Iterator) seek() error {
	t := it.tree

	sk := it.last
	if sk == nil {
		sk = t.lowSortKey(it.low)
	}

	leaf, _, err := t.findLeaf(sk)
	if err != nil {
		return err
	}

	it.leaf = leaf
	if it.last == nil {
		it.pos = t.leafLowerBound(leaf, sk)
	} else {
		it.pos = t.leafUpperBound(leaf, sk)
	}
	it.version = t.version
	return nil
}

func (it *Iterator) finish() {
	it.done = true
	it.leaf = nil
	it.key, it.value = nil, nil
}

// Close stops the iterator. Safe to call more than once.
func (it *Iterator) Close() {
	it.finish()
}

// Key returns the current key.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current value.
func (it *Iterator) Value() []byte { return it.value }

// Err returns the error that stopped the scan, if any.
func (it *Iterator) Err() error { return it.err }
