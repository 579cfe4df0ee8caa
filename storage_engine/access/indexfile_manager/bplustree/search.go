package bplus

import (
	"KeelDB/dberrors"
	"KeelDB/types"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
)

// Search looks for a key in the B+Tree and returns a copy of its value. In
// a non-unique tree it returns the smallest value stored under the key.
func (t *BPlusTree) Search(key []byte) ([]byte, error) {
	if len(key) != t.layout.KeySize {
		return nil, fmt.Errorf("search %s: key is %d bytes, want %d", t.name, len(key), t.layout.KeySize)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	sk := t.lowSortKey(key)
	leaf, _, err := t.findLeaf(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to find leaf: %w", err)
	}

	i := t.leafLowerBound(leaf, sk)
	if i == len(leaf.Keys) {
		// the first candidate may open the next leaf
		if leaf.Next == types.InvalidPage {
			return nil, dberrors.NewNotFoundError(t.name, FormatKey(key))
		}
		if leaf, err = t.fetchNode(leaf.Next); err != nil {
			return nil, err
		}
		i = 0
	}

	if i < len(leaf.Keys) && bytes.Equal(leaf.Keys[i], key) {
		return slices.Clone(leaf.Values[i]), nil
	}
	return nil, dberrors.NewNotFoundError(t.name, FormatKey(key))
}

// SearchAll returns every value stored under key in ascending order.
func (t *BPlusTree) SearchAll(key []byte) ([][]byte, error) {
	it := t.Range(key, key)
	defer it.Close()

	var values [][]byte
	for it.Next() {
		values = append(values, it.Value())
	}
	return values, it.Err()
}

// FormatKey renders a key for error messages: 4 byte keys as the big endian
// integer they encode, anything else as hex.
func FormatKey(key []byte) string {
	if len(key) == 4 {
		return fmt.Sprint(binary.BigEndian.Uint32(key))
	}
	return hex.EncodeToString(key)
}
