package indexfile

import (
	"KeelDB/logging"
	bplus "KeelDB/storage_engine/access/indexfile_manager/bplustree"
	"KeelDB/types"
	"fmt"
	"log/slog"
)

/*
This file is the main file for Index File Manager that deals with the Index pages.
It does not own a file of its own: both B+ trees allocate their pages through
the shared pager, and the file header remembers their roots.

	primary    id (4 bytes, big endian)   → row (291 bytes)    unique, clustered
	secondary  hash(email) (4 bytes, BE)  → id (4 bytes, BE)   non-unique

Keys are stored big endian so byte order equals numeric order.
*/

// CreateIndexes builds two empty trees, primary first so a fresh file gets
// the primary root on page 1 and the secondary root on page 2.
func CreateIndexes(store bplus.PageStore, opts Options, log *slog.Logger) (*IndexFileManager, error) {
	pl, sl := opts.layouts()
	log = logging.WithComponent(log, "indexfile")

	primary, err := bplus.CreateBPlusTree(types.IndexPrimary.String(), store, pl, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary index: %w", err)
	}
	secondary, err := bplus.CreateBPlusTree(types.IndexSecondary.String(), store, sl, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secondary index: %w", err)
	}

	log.Debug("created indexes", "primary_root", primary.Root(), "secondary_root", secondary.Root())
	return &IndexFileManager{
		store:     store,
		primary:   &PrimaryIndex{tree: primary},
		secondary: &SecondaryIndex{tree: secondary},
		log:       log,
	}, nil
}

// OpenIndexes attaches to existing trees at the roots recorded in the file
// header.
func OpenIndexes(store bplus.PageStore, primaryRoot, secondaryRoot types.PageNumber, opts Options, log *slog.Logger) (*IndexFileManager, error) {
	pl, sl := opts.layouts()
	log = logging.WithComponent(log, "indexfile")

	primary, err := bplus.OpenBPlusTree(types.IndexPrimary.String(), store, primaryRoot, pl, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary index: %w", err)
	}
	secondary, err := bplus.OpenBPlusTree(types.IndexSecondary.String(), store, secondaryRoot, sl, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open secondary index: %w", err)
	}

	return &IndexFileManager{
		store:     store,
		primary:   &PrimaryIndex{tree: primary},
		secondary: &SecondaryIndex{tree: secondary},
		log:       log,
	}, nil
}

func (ifm *IndexFileManager) Primary() *PrimaryIndex { return ifm.primary }

func (ifm *IndexFileManager) Secondary() *SecondaryIndex { return ifm.secondary }

// Roots returns the current root pages for the file header. They move on
// root splits and collapses, so the header is rewritten at every checkpoint.
func (ifm *IndexFileManager) Roots() (primary, secondary types.PageNumber) {
	return ifm.primary.tree.Root(), ifm.secondary.tree.Root()
}

// Check runs the structural check on both trees.
func (ifm *IndexFileManager) Check() error {
	if err := ifm.primary.tree.Check(); err != nil {
		return fmt.Errorf("primary index: %w", err)
	}
	if err := ifm.secondary.tree.Check(); err != nil {
		return fmt.Errorf("secondary index: %w", err)
	}
	return nil
}

// Tree exposes the raw tree of one index for inspection.
func (ifm *IndexFileManager) Tree(index types.IndexID) (*bplus.BPlusTree, error) {
	switch index {
	case types.IndexPrimary:
		return ifm.primary.tree, nil
	case types.IndexSecondary:
		return ifm.secondary.tree, nil
	default:
		return nil, fmt.Errorf("unknown index %v", index)
	}
}
