package indexfile

import (
	bplus "KeelDB/storage_engine/access/indexfile_manager/bplustree"
	"KeelDB/types"
	"log/slog"
)

var (
	// PrimaryLayout: id → full encoded row, clustered.
	PrimaryLayout = bplus.Layout{KeySize: types.IDSize, ValueSize: types.RowSize, Unique: true}

	// SecondaryLayout: email hash → id, duplicates allowed.
	SecondaryLayout = bplus.Layout{KeySize: 4, ValueSize: types.IDSize, Unique: false}
)

// IndexFileManager owns the two trees of one database file. Both live in
// the same page space and share the pager.
type IndexFileManager struct {
	store     bplus.PageStore
	primary   *PrimaryIndex
	secondary *SecondaryIndex
	log       *slog.Logger
}

// PrimaryIndex maps a row id to the row itself.
type PrimaryIndex struct {
	tree *bplus.BPlusTree
}

// SecondaryIndex maps hash(email) to the ids carrying it. Hash collisions
// mean a hit is only a candidate; callers re-check the primary row.
type SecondaryIndex struct {
	tree *bplus.BPlusTree
}

// Options narrows node capacities, used by tests to force deep trees.
// Zero fields fill the page.
type Options struct {
	PrimaryLeafEntries       int
	PrimaryInternalEntries   int
	SecondaryLeafEntries     int
	SecondaryInternalEntries int
}

func (o Options) layouts() (bplus.Layout, bplus.Layout) {
	p, s := PrimaryLayout, SecondaryLayout
	p.MaxLeafEntries, p.MaxInternalEntries = o.PrimaryLeafEntries, o.PrimaryInternalEntries
	s.MaxLeafEntries, s.MaxInternalEntries = o.SecondaryLeafEntries, o.SecondaryInternalEntries
	return p, s
}
