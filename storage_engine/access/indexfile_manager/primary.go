package indexfile

import (
	"KeelDB/types"
	"fmt"
)

// Get returns the row stored under id.
func (p *PrimaryIndex) Get(id uint32) (types.Row, error) {
	raw, err := p.tree.Search(EncodeKey(id))
	if err != nil {
		return types.Row{}, err
	}
	return types.DecodeRow(raw)
}

// GetRaw returns the encoded row under id.
func (p *PrimaryIndex) GetRaw(id uint32) ([]byte, error) {
	return p.tree.Search(EncodeKey(id))
}

// Insert adds a new row and fails with a DuplicateKeyError if the id is taken.
func (p *PrimaryIndex) Insert(row types.Row) error {
	raw, err := row.Encode()
	if err != nil {
		return err
	}
	return p.tree.Insert(EncodeKey(row.ID), raw)
}

// PutRaw inserts or overwrites an encoded row and returns the image it
// replaced. Used by update and by recovery redo.
func (p *PrimaryIndex) PutRaw(id uint32, raw []byte) (old []byte, replaced bool, err error) {
	if len(raw) != types.RowSize {
		return nil, false, fmt.Errorf("primary put %d: row is %d bytes, want %d", id, len(raw), types.RowSize)
	}
	return p.tree.Put(EncodeKey(id), raw)
}

// Delete removes the row under id and returns its encoded image.
func (p *PrimaryIndex) Delete(id uint32) ([]byte, error) {
	return p.tree.Delete(EncodeKey(id))
}

// Scan calls fn for every row with low <= id <= high in id order until fn
// returns false.
func (p *PrimaryIndex) Scan(low, high uint32, fn func(row types.Row) bool) error {
	it := p.tree.Range(EncodeKey(low), EncodeKey(high))
	defer it.Close()

	for it.Next() {
		row, err := types.DecodeRow(it.Value())
		if err != nil {
			return err
		}
		if !fn(row) {
			return nil
		}
	}
	return it.Err()
}

// ScanRaw is Scan without decoding, for digests and consistency checks.
func (p *PrimaryIndex) ScanRaw(fn func(id uint32, raw []byte) bool) error {
	it := p.tree.Range(nil, nil)
	defer it.Close()

	for it.Next() {
		if !fn(DecodeKey(it.Key()), it.Value()) {
			return nil
		}
	}
	return it.Err()
}

func (p *PrimaryIndex) Count() (int, error) { return p.tree.Count() }
