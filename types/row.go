package types

import (
	"KeelDB/dberrors"
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
)

/*
Rows have a static schema and a fixed 291 byte payload:

	offset 0   id        uint32 little endian
	offset 4   username  [32]byte, NUL padded
	offset 36  email     [255]byte, NUL padded

The payload is stored whole in the primary index leaves. The secondary index
only stores the 4 byte hash of the email next to the id.
*/

const (
	IDSize       = 4
	UsernameSize = 32
	EmailSize    = 255
	RowSize      = IDSize + UsernameSize + EmailSize // 291

	usernameOffset = IDSize
	emailOffset    = IDSize + UsernameSize
)

type Row struct {
	ID       uint32
	Username string
	Email    string
}

// Validate checks the columns fit their fixed width slots.
func (r Row) Validate() error {
	if len(r.Username) > UsernameSize {
		return dberrors.NewValidationError("username", "%d bytes exceeds limit of %d", len(r.Username), UsernameSize)
	}
	if len(r.Email) > EmailSize {
		return dberrors.NewValidationError("email", "%d bytes exceeds limit of %d", len(r.Email), EmailSize)
	}
	if strings.IndexByte(r.Username, 0) >= 0 {
		return dberrors.NewValidationError("username", "contains NUL byte")
	}
	if strings.IndexByte(r.Email, 0) >= 0 {
		return dberrors.NewValidationError("email", "contains NUL byte")
	}
	return nil
}

// Encode serializes the row into its 291 byte payload.
func (r Row) Encode() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, RowSize)
	binary.LittleEndian.PutUint32(buf[0:IDSize], r.ID)
	copy(buf[usernameOffset:usernameOffset+UsernameSize], r.Username)
	copy(buf[emailOffset:emailOffset+EmailSize], r.Email)
	return buf, nil
}

// DecodeRow parses a 291 byte payload.
func DecodeRow(buf []byte) (Row, error) {
	if len(buf) != RowSize {
		return Row{}, dberrors.NewValidationError("row", "payload is %d bytes, want %d", len(buf), RowSize)
	}
	return Row{
		ID:       binary.LittleEndian.Uint32(buf[0:IDSize]),
		Username: cString(buf[usernameOffset : usernameOffset+UsernameSize]),
		Email:    cString(buf[emailOffset : emailOffset+EmailSize]),
	}, nil
}

// HashEmail is the secondary index key for an email value.
func HashEmail(email string) uint32 {
	return uint32(xxhash.Sum64String(email))
}

// EmailHash is HashEmail applied to the row's email column.
func (r Row) EmailHash() uint32 {
	return HashEmail(r.Email)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
