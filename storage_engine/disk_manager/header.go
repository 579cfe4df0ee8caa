package diskmanager

import (
	"KeelDB/dberrors"
	"KeelDB/storage_engine/page"
	"KeelDB/types"
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
)

// page 0 layout after the common page header
const (
	magicOffset         = page.HeaderSize // 32
	versionOffset       = 40
	pageSizeOffset      = 44
	pageCountOffset     = 48
	freeHeadOffset      = 52
	primaryRootOffset   = 56
	secondaryRootOffset = 60
	checkpointLSNOffset = 64
	databaseIDOffset    = 72
	rowCountOffset      = 88

	FormatVersion = 1
)

var Magic = [8]byte{'K', 'E', 'E', 'L', 'D', 'B', 0x00, 0x01}

// NewFileHeader returns the header of an empty database with a fresh id.
func NewFileHeader() FileHeader {
	return FileHeader{
		Version:    FormatVersion,
		PageSize:   page.PageSize,
		PageCount:  1,
		DatabaseID: uuid.New(),
	}
}

// EncodeFileHeader renders h as a full page 0 buffer.
func EncodeFileHeader(h FileHeader) []byte {
	buf := page.NewBuffer()
	page.EncodeHeader(buf, page.Header{Kind: types.PageKindHeader})

	copy(buf[magicOffset:], Magic[:])
	binary.LittleEndian.PutUint32(buf[versionOffset:], h.Version)
	binary.LittleEndian.PutUint32(buf[pageSizeOffset:], h.PageSize)
	binary.LittleEndian.PutUint32(buf[pageCountOffset:], h.PageCount)
	binary.LittleEndian.PutUint32(buf[freeHeadOffset:], uint32(h.FreeListHead))
	binary.LittleEndian.PutUint32(buf[primaryRootOffset:], uint32(h.PrimaryRoot))
	binary.LittleEndian.PutUint32(buf[secondaryRootOffset:], uint32(h.SecondaryRoot))
	binary.LittleEndian.PutUint64(buf[checkpointLSNOffset:], h.CheckpointLSN)
	copy(buf[databaseIDOffset:databaseIDOffset+16], h.DatabaseID[:])
	binary.LittleEndian.PutUint32(buf[rowCountOffset:], h.RowCount)
	return buf
}

// DecodeFileHeader parses page 0. A wrong kind, magic, version or page size
// is reported as corruption.
func DecodeFileHeader(source string, buf []byte) (FileHeader, error) {
	if page.Kind(buf) != types.PageKindHeader {
		return FileHeader{}, dberrors.PageCorruptf(source, 0, "page kind is %v, want header", page.Kind(buf))
	}
	if !bytes.Equal(buf[magicOffset:magicOffset+len(Magic)], Magic[:]) {
		return FileHeader{}, dberrors.PageCorruptf(source, 0, "bad magic %q", buf[magicOffset:magicOffset+len(Magic)])
	}

	h := FileHeader{
		Version:       binary.LittleEndian.Uint32(buf[versionOffset:]),
		PageSize:      binary.LittleEndian.Uint32(buf[pageSizeOffset:]),
		PageCount:     binary.LittleEndian.Uint32(buf[pageCountOffset:]),
		FreeListHead:  types.PageNumber(binary.LittleEndian.Uint32(buf[freeHeadOffset:])),
		PrimaryRoot:   types.PageNumber(binary.LittleEndian.Uint32(buf[primaryRootOffset:])),
		SecondaryRoot: types.PageNumber(binary.LittleEndian.Uint32(buf[secondaryRootOffset:])),
		CheckpointLSN: binary.LittleEndian.Uint64(buf[checkpointLSNOffset:]),
		RowCount:      binary.LittleEndian.Uint32(buf[rowCountOffset:]),
	}
	copy(h.DatabaseID[:], buf[databaseIDOffset:databaseIDOffset+16])

	if h.Version != FormatVersion {
		return FileHeader{}, dberrors.PageCorruptf(source, 0, "unsupported format version %d", h.Version)
	}
	if h.PageSize != page.PageSize {
		return FileHeader{}, dberrors.PageCorruptf(source, 0, "page size %d, want %d", h.PageSize, page.PageSize)
	}
	if h.PageCount == 0 || h.PrimaryRoot >= types.PageNumber(h.PageCount) || h.SecondaryRoot >= types.PageNumber(h.PageCount) {
		return FileHeader{}, dberrors.PageCorruptf(source, 0, "roots %d/%d outside page count %d",
			h.PrimaryRoot, h.SecondaryRoot, h.PageCount)
	}
	return h, nil
}
