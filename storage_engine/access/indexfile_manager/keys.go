package indexfile

import (
	"KeelDB/dberrors"
	"encoding/binary"
)

// EncodeKey renders a 4 byte key big endian.
func EncodeKey(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func DecodeKey(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// EntryKey is the 8 byte hash‖id form that identifies one secondary entry.
// The WAL logs secondary mutations under it.
func EntryKey(hash, id uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], hash)
	binary.BigEndian.PutUint32(b[4:8], id)
	return b
}

// SplitEntryKey reverses EntryKey.
func SplitEntryKey(b []byte) (hash, id uint32, err error) {
	if len(b) != 8 {
		return 0, 0, dberrors.Corruptf("secondary", "entry key is %d bytes, want 8", len(b))
	}
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8]), nil
}
