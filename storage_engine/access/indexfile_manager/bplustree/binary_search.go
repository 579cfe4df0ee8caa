package bplus

import (
	"bytes"
	"slices"
	"sort"
)

// compareEntry compares leaf entry i with a sort key.
func (t *BPlusTree) compareEntry(n *Node, i int, sk []byte) int {
	ks := t.layout.KeySize
	if c := bytes.Compare(n.Keys[i], sk[:ks]); c != 0 || t.layout.Unique {
		return c
	}
	return bytes.Compare(n.Values[i], sk[ks:])
}

// leafLowerBound returns the first entry >= sk.
func (t *BPlusTree) leafLowerBound(n *Node, sk []byte) int {
	return sort.Search(len(n.Keys), func(i int) bool {
		return t.compareEntry(n, i, sk) >= 0
	})
}

// leafUpperBound returns the first entry > sk.
func (t *BPlusTree) leafUpperBound(n *Node, sk []byte) int {
	return sort.Search(len(n.Keys), func(i int) bool {
		return t.compareEntry(n, i, sk) > 0
	})
}

// childIndex picks the child of an internal node that owns sk: the number
// of separators <= sk.
func childIndex(n *Node, sk []byte) int {
	return sort.Search(len(n.Keys), func(i int) bool {
		return bytes.Compare(n.Keys[i], sk) > 0
	})
}

// sortKey builds the ordering key of an entry.
func (t *BPlusTree) sortKey(key, value []byte) []byte {
	if t.layout.Unique {
		return slices.Clone(key)
	}
	sk := make([]byte, 0, len(key)+len(value))
	sk = append(sk, key...)
	return append(sk, value...)
}

func (t *BPlusTree) entrySortKey(n *Node, i int) []byte {
	return t.sortKey(n.Keys[i], n.Values[i])
}

// lowSortKey is the smallest sort key carrying key. A nil key means the
// start of the tree.
func (t *BPlusTree) lowSortKey(key []byte) []byte {
	sk := make([]byte, t.layout.sortKeySize())
	copy(sk, key)
	return sk
}

// insert inserts elem at index i in slice.
func insert[T any](slice []T, i int, elem T) []T {
	slice = append(slice, elem) // grow by 1
	copy(slice[i+1:], slice[i:])
	slice[i] = elem
	return slice
}

// remove removes element at index i from slice.
func remove[T any](slice []T, i int) []T {
	return append(slice[:i], slice[i+1:]...)
}
