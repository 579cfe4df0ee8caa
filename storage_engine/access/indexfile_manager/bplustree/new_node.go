package bplus

import (
	"KeelDB/types"
	"fmt"
)

// newNode allocates a page from the pager and returns an empty node for it.
// Nothing is written until writeNode.
func (t *BPlusTree) newNode(kind types.PageKind) (*Node, error) {
	pn, err := t.store.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("newNode: failed to allocate page: %w", err)
	}

	n := &Node{
		PageNum: pn,
		Kind:    kind,
		Keys:    make([][]byte, 0),
	}
	if kind == types.PageKindLeaf {
		n.Values = make([][]byte, 0)
	} else {
		n.Children = make([]types.PageNumber, 0)
	}
	return n, nil
}

// writeNode serializes a node and hands the page back to the pager.
func (t *BPlusTree) writeNode(n *Node) error {
	buf, err := EncodeNode(n, t.layout)
	if err != nil {
		return fmt.Errorf("writeNode: %w", err)
	}
	if err := t.store.WritePage(n.PageNum, buf); err != nil {
		return fmt.Errorf("writeNode: failed to write page %d: %w", n.PageNum, err)
	}
	t.version++
	return nil
}

// fetchNode loads a node through the pager.
func (t *BPlusTree) fetchNode(pn types.PageNumber) (*Node, error) {
	if pn == types.InvalidPage {
		return nil, fmt.Errorf("fetchNode: invalid page number 0")
	}

	buf, err := t.store.ReadPage(pn)
	if err != nil {
		return nil, fmt.Errorf("fetchNode: failed to read page %d: %w", pn, err)
	}

	n, err := DecodeNode(pn, buf, t.layout)
	if err != nil {
		return nil, fmt.Errorf("fetchNode: %w", err)
	}
	return n, nil
}

// freeNode returns a node's page to the free list.
func (t *BPlusTree) freeNode(n *Node) error {
	if err := t.store.FreePage(n.PageNum); err != nil {
		return fmt.Errorf("freeNode: failed to free page %d: %w", n.PageNum, err)
	}
	t.version++
	return nil
}
