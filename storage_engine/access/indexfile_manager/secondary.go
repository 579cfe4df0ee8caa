package indexfile

import (
	"KeelDB/dberrors"
	"errors"
)

// Lookup returns every id filed under hash, ascending.
func (s *SecondaryIndex) Lookup(hash uint32) ([]uint32, error) {
	values, err := s.tree.SearchAll(EncodeKey(hash))
	if err != nil {
		return nil, err
	}

	ids := make([]uint32, len(values))
	for i, v := range values {
		ids[i] = DecodeKey(v)
	}
	return ids, nil
}

// Insert files id under hash. The same pair twice is a DuplicateKeyError.
func (s *SecondaryIndex) Insert(hash, id uint32) error {
	return s.tree.Insert(EncodeKey(hash), EncodeKey(id))
}

// Put files id under hash if it is not there yet.
func (s *SecondaryIndex) Put(hash, id uint32) error {
	_, _, err := s.tree.Put(EncodeKey(hash), EncodeKey(id))
	return err
}

// Remove drops the (hash, id) entry. Missing entries are a NotFoundError.
func (s *SecondaryIndex) Remove(hash, id uint32) error {
	return s.tree.DeleteEntry(EncodeKey(hash), EncodeKey(id))
}

// RemoveIfPresent is Remove that treats a missing entry as done.
func (s *SecondaryIndex) RemoveIfPresent(hash, id uint32) (bool, error) {
	err := s.Remove(hash, id)
	if errors.Is(err, dberrors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Has reports whether the exact (hash, id) entry exists.
func (s *SecondaryIndex) Has(hash, id uint32) (bool, error) {
	ids, err := s.Lookup(hash)
	if err != nil {
		return false, err
	}
	for _, got := range ids {
		if got == id {
			return true, nil
		}
	}
	return false, nil
}

// Scan calls fn for every entry in (hash, id) order until fn returns false.
func (s *SecondaryIndex) Scan(fn func(hash, id uint32) bool) error {
	it := s.tree.Range(nil, nil)
	defer it.Close()

	for it.Next() {
		if !fn(DecodeKey(it.Key()), DecodeKey(it.Value())) {
			return nil
		}
	}
	return it.Err()
}

func (s *SecondaryIndex) Count() (int, error) { return s.tree.Count() }
