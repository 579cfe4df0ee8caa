// Structure of B+ Tree
/*
Tree
 ├── Internal Node (separators + child pointers)
 │      └── Child Internal Nodes ...
 │             └── Leaf Nodes (keys + values + prev/next pointers)


- a tree is parameterised by a Layout: key width, value width, uniqueness
- every entry is ordered by its sort key:
    unique tree      sort key = key
    non-unique tree  sort key = key ‖ value (duplicates ordered by value)
- internal nodes: len(children) == len(separators)+1, child i holds sort keys in [sep[i-1], sep[i])
- leaf nodes: len(values) == len(keys)
- leaf nodes linked both ways for range scans
- all leaf nodes at same depth, every non-root node at least half full

*/
package bplus

import (
	"KeelDB/dberrors"
	"KeelDB/storage_engine/page"
	"KeelDB/types"
	"log/slog"
	"sync"
)

const maxHeight = 32 // deeper than any tree a 32-bit page space can hold

// Layout fixes the entry format of one tree.
type Layout struct {
	KeySize   int
	ValueSize int
	Unique    bool

	// Optional caps below the physical page capacity, 0 = fill the page.
	// Small caps force deep trees in tests.
	MaxLeafEntries     int
	MaxInternalEntries int
}

func (l Layout) sortKeySize() int {
	if l.Unique {
		return l.KeySize
	}
	return l.KeySize + l.ValueSize
}

func (l Layout) leafEntrySize() int     { return l.KeySize + l.ValueSize }
func (l Layout) internalEntrySize() int { return l.sortKeySize() + 4 }

// LeafCapacity is the maximum number of entries in a leaf.
func (l Layout) LeafCapacity() int {
	c := (page.PageSize - page.HeaderSize) / l.leafEntrySize()
	if l.MaxLeafEntries > 0 && l.MaxLeafEntries < c {
		c = l.MaxLeafEntries
	}
	return c
}

// InternalCapacity is the maximum number of separators in an internal node.
func (l Layout) InternalCapacity() int {
	c := (page.PageSize - page.HeaderSize) / l.internalEntrySize()
	if l.MaxInternalEntries > 0 && l.MaxInternalEntries < c {
		c = l.MaxInternalEntries
	}
	return c
}

func (l Layout) validate() error {
	if l.KeySize <= 0 || l.ValueSize < 0 {
		return dberrors.NewValidationError("layout", "key size %d / value size %d", l.KeySize, l.ValueSize)
	}
	if l.leafEntrySize() == 0 || l.LeafCapacity() < 3 {
		return dberrors.NewValidationError("layout", "leaf capacity %d is below 3", l.LeafCapacity())
	}
	if l.InternalCapacity() < 3 {
		return dberrors.NewValidationError("layout", "internal capacity %d is below 3", l.InternalCapacity())
	}
	return nil
}

// Node is the typed form of a tree page. Only node_to_index_page.go turns
// it into bytes and back.
type Node struct {
	PageNum types.PageNumber
	Kind    types.PageKind // PageKindLeaf or PageKindInternal
	IsRoot  bool

	Next types.PageNumber // leaf only
	Prev types.PageNumber // leaf only

	Keys     [][]byte           // leaf: keys, internal: separator sort keys
	Values   [][]byte           // leaf only
	Children []types.PageNumber // internal only
}

func (n *Node) isLeaf() bool { return n.Kind == types.PageKindLeaf }

// PageStore is the part of the pager a tree needs. The tree never does I/O
// on its own.
type PageStore interface {
	AllocatePage() (types.PageNumber, error)
	ReadPage(pn types.PageNumber) ([]byte, error)
	WritePage(pn types.PageNumber, buf []byte) error
	FreePage(pn types.PageNumber) error
}

type BPlusTree struct {
	name    string
	store   PageStore
	layout  Layout
	root    types.PageNumber
	version uint64 // bumped on every page write, lets iterators notice changes
	log     *slog.Logger
	mu      sync.RWMutex // protects tree structure during splits/merges
}

// pathStep remembers which child was taken at an internal node on the way
// down, so splits and merges can walk back up without parent pointers.
type pathStep struct {
	node     *Node
	childIdx int
}
