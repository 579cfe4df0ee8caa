package wal_manager

import (
	"KeelDB/dberrors"
	"KeelDB/types"
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

func (r *WALRecord) Encode() []byte {
	totalSize := RecordHeaderSize + len(r.Data)
	buf := make([]byte, totalSize)

	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint32(buf[12:16], r.CRC)
	copy(buf[16:], r.Data)

	return buf
}

func (r *WALRecord) ValidateCRC() bool {
	computedCRC := calculateCRC(r.LSN, r.Data)
	return computedCRC == r.CRC
}

// calculateCRC computes CRC32 checksum over LSN and data
func calculateCRC(lsn uint64, data []byte) uint32 {
	hasher := crc32.NewIEEE()

	// LSN in CRC calculation
	lsnBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(lsnBytes, lsn)
	hasher.Write(lsnBytes)

	// data in CRC calculation
	hasher.Write(data)

	return hasher.Sum32()
}

/*
Payload of a frame, little endian:

	txn id u64 | kind u8 | index u8 | key len u16 | before len u32 | after len u32 | key | before | after
*/

func (r *Record) encodePayload() []byte {
	buf := make([]byte, payloadHeaderSize+len(r.Key)+len(r.Before)+len(r.After))

	binary.LittleEndian.PutUint64(buf[0:8], r.TxnID)
	buf[8] = byte(r.Kind)
	buf[9] = byte(r.Index)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(r.Key)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(r.Before)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(r.After)))

	off := payloadHeaderSize
	off += copy(buf[off:], r.Key)
	off += copy(buf[off:], r.Before)
	copy(buf[off:], r.After)
	return buf
}

func decodePayload(source string, lsn uint64, data []byte) (Record, error) {
	if len(data) < payloadHeaderSize {
		return Record{}, dberrors.Corruptf(source, "record %d: payload is %d bytes", lsn, len(data))
	}

	r := Record{
		LSN:   lsn,
		TxnID: binary.LittleEndian.Uint64(data[0:8]),
		Kind:  types.OperationType(data[8]),
		Index: types.IndexID(data[9]),
	}
	if !r.Kind.Valid() {
		return Record{}, dberrors.Corruptf(source, "record %d: unknown kind %d", lsn, data[8])
	}

	keyLen := int(binary.LittleEndian.Uint16(data[10:12]))
	beforeLen := int(binary.LittleEndian.Uint32(data[12:16]))
	afterLen := int(binary.LittleEndian.Uint32(data[16:20]))
	if payloadHeaderSize+keyLen+beforeLen+afterLen != len(data) {
		return Record{}, dberrors.Corruptf(source, "record %d: field lengths %d/%d/%d do not match payload of %d bytes",
			lsn, keyLen, beforeLen, afterLen, len(data))
	}

	off := payloadHeaderSize
	r.Key = bytes.Clone(data[off : off+keyLen])
	off += keyLen
	if beforeLen > 0 {
		r.Before = bytes.Clone(data[off : off+beforeLen])
	}
	off += beforeLen
	if afterLen > 0 {
		r.After = bytes.Clone(data[off : off+afterLen])
	}
	return r, nil
}

func encodeFileHeader(h fileHeader) []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	copy(buf[16:32], h.DatabaseID[:])
	binary.LittleEndian.PutUint64(buf[32:40], h.BaseLSN)
	binary.LittleEndian.PutUint32(buf[44:48], crc32.ChecksumIEEE(buf[:44]))
	return buf
}

func decodeFileHeader(source string, buf []byte) (fileHeader, error) {
	if len(buf) < FileHeaderSize {
		return fileHeader{}, dberrors.Corruptf(source, "header is %d bytes, want %d", len(buf), FileHeaderSize)
	}
	if !bytes.Equal(buf[0:8], Magic[:]) {
		return fileHeader{}, dberrors.Corruptf(source, "bad magic %q", buf[0:8])
	}
	if crc32.ChecksumIEEE(buf[:44]) != binary.LittleEndian.Uint32(buf[44:48]) {
		return fileHeader{}, dberrors.Corruptf(source, "header checksum mismatch")
	}

	h := fileHeader{
		Version: binary.LittleEndian.Uint32(buf[8:12]),
		Flags:   binary.LittleEndian.Uint32(buf[12:16]),
		BaseLSN: binary.LittleEndian.Uint64(buf[32:40]),
	}
	copy(h.DatabaseID[:], buf[16:32])
	if h.Version != FormatVersion {
		return fileHeader{}, dberrors.Corruptf(source, "unsupported version %d", h.Version)
	}
	return h, nil
}

func (m SyncMode) String() string {
	switch m {
	case SyncEveryRecord:
		return "record"
	case SyncOnCommit:
		return "commit"
	default:
		return "unknown"
	}
}

// ParseSyncMode accepts "record" or "commit".
func ParseSyncMode(s string) (SyncMode, error) {
	switch s {
	case "record", "":
		return SyncEveryRecord, nil
	case "commit":
		return SyncOnCommit, nil
	default:
		return 0, dberrors.NewValidationError("sync", "unknown sync mode %q (want record or commit)", s)
	}
}
