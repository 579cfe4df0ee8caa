package wal_manager

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	errTorn      = errors.New("record cut short")
	errChecksum  = errors.New("record checksum mismatch")
	errBadLength = errors.New("record length out of range")
)

// frameReader pulls WALRecord frames off a byte stream. It reports what
// went wrong with a frame; whether that is a torn tail or corruption is the
// caller's decision, since only the caller knows where the file ends.
type frameReader struct {
	r   io.Reader
	hdr [RecordHeaderSize]byte
}

// next returns the frame and the number of bytes it spans in the stream
// (as far as the header says). io.EOF means a clean end.
func (fr *frameReader) next() (WALRecord, int64, error) {
	n, err := io.ReadFull(fr.r, fr.hdr[:])
	switch {
	case err == io.EOF:
		return WALRecord{}, 0, io.EOF
	case err == io.ErrUnexpectedEOF:
		return WALRecord{}, int64(n), errTorn
	case err != nil:
		return WALRecord{}, 0, err
	}

	rec := WALRecord{
		LSN: binary.BigEndian.Uint64(fr.hdr[0:8]),
		CRC: binary.BigEndian.Uint32(fr.hdr[12:16]),
	}
	length := binary.BigEndian.Uint32(fr.hdr[8:12])
	span := RecordHeaderSize + int64(length)
	if length > MaxRecordSize {
		return rec, span, errBadLength
	}

	rec.Data = make([]byte, length)
	if _, err := io.ReadFull(fr.r, rec.Data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return rec, span, errTorn
		}
		return rec, span, err
	}

	if !rec.ValidateCRC() {
		return rec, span, errChecksum
	}
	return rec, span, nil
}
