package bplus

import (
	"KeelDB/dberrors"
	"KeelDB/types"
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"
)

func TestDeleteRebalance(t *testing.T) {
	tree, _ := newTestTree(t, smallLayout)

	const n = 300
	for i := 0; i < n; i++ {
		if err := tree.Insert(k(i), v(i)); err != nil {
			t.Fatalf("Failed to insert %d: %v", i, err)
		}
	}

	// Test 1: delete every even key in random order
	rng := rand.New(rand.NewSource(42))
	evens := make([]int, 0, n/2)
	for i := 0; i < n; i += 2 {
		evens = append(evens, i)
	}
	rng.Shuffle(len(evens), func(i, j int) { evens[i], evens[j] = evens[j], evens[i] })

	for step, key := range evens {
		old, err := tree.Delete(k(key))
		if err != nil {
			t.Fatalf("Failed to delete %d: %v", key, err)
		}
		if !bytes.Equal(old, v(key)) {
			t.Fatalf("Delete(%d) returned %x", key, old)
		}
		if step%10 == 0 {
			mustCheck(t, tree)
		}
	}
	mustCheck(t, tree)

	for i := 0; i < n; i++ {
		_, err := tree.Search(k(i))
		if i%2 == 0 && !errors.Is(err, dberrors.ErrNotFound) {
			t.Fatalf("deleted key %d still found (err=%v)", i, err)
		}
		if i%2 == 1 && err != nil {
			t.Fatalf("surviving key %d lost: %v", i, err)
		}
	}
	if c, _ := tree.Count(); c != n/2 {
		t.Errorf("Count = %d, want %d", c, n/2)
	}

	// Test 2: deleting a missing key
	var nf *dberrors.NotFoundError
	if _, err := tree.Delete(k(0)); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	// Test 3: drain the tree, the root collapses back to a leaf
	for i := 1; i < n; i += 2 {
		if _, err := tree.Delete(k(i)); err != nil {
			t.Fatalf("Failed to delete %d: %v", i, err)
		}
	}
	mustCheck(t, tree)
	if h, _ := tree.Height(); h != 1 {
		t.Errorf("height after draining = %d, want 1", h)
	}
	if c, _ := tree.Count(); c != 0 {
		t.Errorf("Count after draining = %d", c)
	}
}

func TestDeleteReusesPages(t *testing.T) {
	tree, p := newTestTree(t, smallLayout)

	for i := 0; i < 200; i++ {
		tree.Insert(k(i), v(i))
	}
	for i := 0; i < 200; i++ {
		if _, err := tree.Delete(k(i)); err != nil {
			t.Fatalf("Failed to delete %d: %v", i, err)
		}
	}

	free, err := p.FreeListLength()
	if err != nil {
		t.Fatalf("Failed to walk free list: %v", err)
	}
	if free < 20 {
		t.Fatalf("only %d pages freed after draining 200 entries", free)
	}

	pages := p.PageCount()
	for i := 0; i < 20; i++ {
		tree.Insert(k(i), v(i))
	}
	if p.PageCount() != pages {
		t.Errorf("file grew from %d to %d pages while free pages were available", pages, p.PageCount())
	}
	mustCheck(t, tree)
}

func TestDeleteInterleavedWithInsert(t *testing.T) {
	tree, _ := newTestTree(t, smallLayout)

	rng := rand.New(rand.NewSource(3))
	live := map[int]bool{}
	for i := 0; i < 3000; i++ {
		key := rng.Intn(400)
		if live[key] {
			if _, err := tree.Delete(k(key)); err != nil {
				t.Fatalf("Failed to delete %d: %v", key, err)
			}
			delete(live, key)
		} else {
			if err := tree.Insert(k(key), v(key)); err != nil {
				t.Fatalf("Failed to insert %d: %v", key, err)
			}
			live[key] = true
		}
		if i%250 == 0 {
			mustCheck(t, tree)
		}
	}
	mustCheck(t, tree)

	if c, _ := tree.Count(); c != len(live) {
		t.Errorf("Count = %d, want %d", c, len(live))
	}
}

func TestNonUniqueTree(t *testing.T) {
	layout := Layout{KeySize: 4, ValueSize: 4, Unique: false, MaxLeafEntries: 4, MaxInternalEntries: 4}
	tree, _ := newTestTree(t, layout)

	id := func(i int) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(i))
		return b
	}

	// Test 1: many ids under one hash, spread over several leaves
	for _, i := range []int{9, 2, 5, 14, 11, 7, 1, 20, 3} {
		if err := tree.Insert(k(7), id(i)); err != nil {
			t.Fatalf("Failed to insert (7,%d): %v", i, err)
		}
	}
	tree.Insert(k(3), id(100))
	tree.Insert(k(8), id(0))
	mustCheck(t, tree)

	values, err := tree.SearchAll(k(7))
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	want := []int{1, 2, 3, 5, 7, 9, 11, 14, 20}
	if len(values) != len(want) {
		t.Fatalf("SearchAll(7) returned %d values, want %d", len(values), len(want))
	}
	for i, w := range want {
		if keyInt(values[i]) != w {
			t.Fatalf("SearchAll(7)[%d] = %d, want %d", i, keyInt(values[i]), w)
		}
	}

	// Test 2: identical pair is a duplicate, Put of it is a no-op
	if err := tree.Insert(k(7), id(5)); !errors.Is(err, dberrors.ErrDuplicateKey) {
		t.Fatalf("expected duplicate for identical pair, got %v", err)
	}
	if _, _, err := tree.Put(k(7), id(5)); err != nil {
		t.Fatalf("Put of existing pair failed: %v", err)
	}

	// Test 3: DeleteEntry removes one value only
	if err := tree.DeleteEntry(k(7), id(5)); err != nil {
		t.Fatalf("Failed to delete entry: %v", err)
	}
	if err := tree.DeleteEntry(k(7), id(5)); !errors.Is(err, dberrors.ErrNotFound) {
		t.Fatalf("expected NotFound deleting twice, got %v", err)
	}
	values, _ = tree.SearchAll(k(7))
	if len(values) != len(want)-1 {
		t.Errorf("SearchAll(7) after delete returned %d values", len(values))
	}
	mustCheck(t, tree)

	if _, err := tree.Delete(k(7)); err == nil {
		t.Error("Delete on a non-unique tree should be refused")
	}

	if values, _ := tree.SearchAll(k(4)); len(values) != 0 {
		t.Errorf("SearchAll of missing hash returned %d values", len(values))
	}
}

func TestNodeCodecRoundTrip(t *testing.T) {
	layout := Layout{KeySize: 4, ValueSize: 8, Unique: true}

	leaf := &Node{
		PageNum: 7,
		Kind:    types.PageKindLeaf,
		Next:    9,
		Prev:    3,
		Keys:    [][]byte{k(1), k(2), k(3)},
		Values:  [][]byte{v(1), v(2), v(3)},
	}
	buf, err := EncodeNode(leaf, layout)
	if err != nil {
		t.Fatalf("Failed to encode leaf: %v", err)
	}
	got, err := DecodeNode(7, buf, layout)
	if err != nil {
		t.Fatalf("Failed to decode leaf: %v", err)
	}
	assertNodesEqual(t, leaf, got)

	internal := &Node{
		PageNum:  12,
		Kind:     types.PageKindInternal,
		IsRoot:   true,
		Keys:     [][]byte{k(10), k(20)},
		Children: []types.PageNumber{4, 5, 6},
	}
	buf, err = EncodeNode(internal, layout)
	if err != nil {
		t.Fatalf("Failed to encode internal: %v", err)
	}
	got, err = DecodeNode(12, buf, layout)
	if err != nil {
		t.Fatalf("Failed to decode internal: %v", err)
	}
	assertNodesEqual(t, internal, got)

	// mismatched children count is refused
	internal.Children = internal.Children[:2]
	if _, err := EncodeNode(internal, layout); err == nil {
		t.Error("encode accepted an internal node with too few children")
	}

	// a page that is not a tree node is corruption
	if _, err := DecodeNode(1, make([]byte, types.PageSize), layout); !errors.Is(err, dberrors.ErrCorrupt) {
		t.Errorf("expected corruption decoding an unused page, got %v", err)
	}
}

func assertNodesEqual(t *testing.T, want, got *Node) {
	t.Helper()
	if want.PageNum != got.PageNum || want.Kind != got.Kind || want.IsRoot != got.IsRoot ||
		want.Next != got.Next || want.Prev != got.Prev {
		t.Fatalf("header mismatch: want %+v, got %+v", want, got)
	}
	if len(want.Keys) != len(got.Keys) || len(want.Values) != len(got.Values) || len(want.Children) != len(got.Children) {
		t.Fatalf("entry count mismatch: want %d/%d/%d, got %d/%d/%d",
			len(want.Keys), len(want.Values), len(want.Children),
			len(got.Keys), len(got.Values), len(got.Children))
	}
	for i := range want.Keys {
		if !bytes.Equal(want.Keys[i], got.Keys[i]) {
			t.Errorf("key %d: want %x, got %x", i, want.Keys[i], got.Keys[i])
		}
	}
	for i := range want.Values {
		if !bytes.Equal(want.Values[i], got.Values[i]) {
			t.Errorf("value %d: want %x, got %x", i, want.Values[i], got.Values[i])
		}
	}
	for i := range want.Children {
		if want.Children[i] != got.Children[i] {
			t.Errorf("child %d: want %d, got %d", i, want.Children[i], got.Children[i])
		}
	}
}
