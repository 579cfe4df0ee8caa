package bplus

import (
	"KeelDB/dberrors"
	"KeelDB/logging"
	"KeelDB/types"
	"fmt"
	"log/slog"
)

// CreateBPlusTree allocates an empty root leaf and returns the tree. The
// caller persists Root() (the file header keeps the roots of both indexes).
func CreateBPlusTree(name string, store PageStore, layout Layout, log *slog.Logger) (*BPlusTree, error) {
	if err := layout.validate(); err != nil {
		return nil, err
	}

	t := newTree(name, store, layout, log)

	root, err := t.newNode(types.PageKindLeaf)
	if err != nil {
		return nil, fmt.Errorf("CreateBPlusTree %s: %w", name, err)
	}
	root.IsRoot = true
	if err := t.writeNode(root); err != nil {
		return nil, err
	}

	t.root = root.PageNum
	t.log.Debug("created tree", "root", t.root)
	return t, nil
}

// OpenBPlusTree attaches to an existing tree rooted at root.
func OpenBPlusTree(name string, store PageStore, root types.PageNumber, layout Layout, log *slog.Logger) (*BPlusTree, error) {
	if err := layout.validate(); err != nil {
		return nil, err
	}

	t := newTree(name, store, layout, log)

	n, err := t.fetchNode(root)
	if err != nil {
		return nil, fmt.Errorf("OpenBPlusTree %s: %w", name, err)
	}
	if !n.IsRoot {
		return nil, dberrors.PageCorruptf(name, uint32(root), "root page is missing its root flag")
	}

	t.root = root
	return t, nil
}

func newTree(name string, store PageStore, layout Layout, log *slog.Logger) *BPlusTree {
	return &BPlusTree{
		name:   name,
		store:  store,
		layout: layout,
		log:    logging.WithIndex(logging.WithComponent(log, "bplustree"), name),
	}
}

// Root returns the current root page. It changes when the root splits or
// collapses.
func (t *BPlusTree) Root() types.PageNumber {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

func (t *BPlusTree) Name() string { return t.name }

func (t *BPlusTree) Layout() Layout { return t.layout }
