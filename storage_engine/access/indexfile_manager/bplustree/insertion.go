package bplus

import (
	"KeelDB/dberrors"
	"fmt"
	"slices"
)

// Insert adds a new entry. A unique tree rejects an existing key, a
// non-unique tree rejects an identical (key, value) pair; both with a
// DuplicateKeyError.
func (t *BPlusTree) Insert(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, _, err := t.insertEntry(key, value, false)
	return err
}

// Put inserts or replaces. In a unique tree an existing value is overwritten
// and returned; in a non-unique tree an identical entry is left alone.
func (t *BPlusTree) Put(key, value []byte) (old []byte, replaced bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.insertEntry(key, value, true)
}

func (t *BPlusTree) insertEntry(key, value []byte, upsert bool) ([]byte, bool, error) {
	if len(key) != t.layout.KeySize || len(value) != t.layout.ValueSize {
		return nil, false, fmt.Errorf("insert %s: entry sizes %d/%d, want %d/%d",
			t.name, len(key), len(value), t.layout.KeySize, t.layout.ValueSize)
	}

	sk := t.sortKey(key, value)
	leaf, path, err := t.findLeaf(sk)
	if err != nil {
		return nil, false, fmt.Errorf("Insertion: failed to find leaf: %w", err)
	}

	idx := t.leafLowerBound(leaf, sk)
	if idx < len(leaf.Keys) && t.compareEntry(leaf, idx, sk) == 0 {
		if !upsert {
			return nil, false, dberrors.NewDuplicateKeyError(t.name, FormatKey(key))
		}
		old := slices.Clone(leaf.Values[idx])
		if !t.layout.Unique {
			return old, true, nil
		}
		// Key exists, update value in place.
		leaf.Values[idx] = slices.Clone(value)
		return old, true, t.writeNode(leaf)
	}

	// Insert key/value in sorted position.
	leaf.Keys = insert(leaf.Keys, idx, slices.Clone(key))
	leaf.Values = insert(leaf.Values, idx, slices.Clone(value))

	// Split if overflow.
	if len(leaf.Keys) > t.layout.LeafCapacity() {
		return nil, false, t.splitLeaf(leaf, path)
	}
	return nil, false, t.writeNode(leaf)
}
