package page

import (
	"KeelDB/types"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

/*
Every page starts with the same 32 byte header so the pager, the B+ tree and
the free list can all read a page's kind without knowing its payload format.

	0   kind            1 byte
	1   flags           1 byte   (bit 0 = root)
	2   entry count     2 bytes
	4   checksum        4 bytes  (xxhash64 of the page with this field zeroed)
	8   page LSN        8 bytes
	16  next            4 bytes  (leaf: right sibling, free: next free page)
	20  prev            4 bytes  (leaf: left sibling)
	24  leftmost child  4 bytes  (internal only)
	28  reserved        4 bytes

The payload (leaf/internal entries, file header fields) follows at offset 32.
*/

const (
	PageSize   = types.PageSize
	HeaderSize = types.PageHeaderSize

	kindOffset     = 0
	flagsOffset    = 1
	countOffset    = 2
	checksumOffset = 4
	lsnOffset      = 8
	nextOffset     = 16
	prevOffset     = 20
	leftmostOffset = 24

	FlagRoot uint8 = 1 << 0
)

type Header struct {
	Kind     types.PageKind
	Flags    uint8
	Count    uint16
	Checksum uint32
	LSN      uint64
	Next     types.PageNumber
	Prev     types.PageNumber
	Leftmost types.PageNumber
}

func (h Header) IsRoot() bool { return h.Flags&FlagRoot != 0 }

// EncodeHeader writes h into the first 32 bytes of buf. The checksum field
// is written as given; Seal recomputes it.
func EncodeHeader(buf []byte, h Header) {
	buf[kindOffset] = byte(h.Kind)
	buf[flagsOffset] = h.Flags
	binary.LittleEndian.PutUint16(buf[countOffset:], h.Count)
	binary.LittleEndian.PutUint32(buf[checksumOffset:], h.Checksum)
	binary.LittleEndian.PutUint64(buf[lsnOffset:], h.LSN)
	binary.LittleEndian.PutUint32(buf[nextOffset:], uint32(h.Next))
	binary.LittleEndian.PutUint32(buf[prevOffset:], uint32(h.Prev))
	binary.LittleEndian.PutUint32(buf[leftmostOffset:], uint32(h.Leftmost))
	clear(buf[28:HeaderSize])
}

func DecodeHeader(buf []byte) Header {
	return Header{
		Kind:     types.PageKind(buf[kindOffset]),
		Flags:    buf[flagsOffset],
		Count:    binary.LittleEndian.Uint16(buf[countOffset:]),
		Checksum: binary.LittleEndian.Uint32(buf[checksumOffset:]),
		LSN:      binary.LittleEndian.Uint64(buf[lsnOffset:]),
		Next:     types.PageNumber(binary.LittleEndian.Uint32(buf[nextOffset:])),
		Prev:     types.PageNumber(binary.LittleEndian.Uint32(buf[prevOffset:])),
		Leftmost: types.PageNumber(binary.LittleEndian.Uint32(buf[leftmostOffset:])),
	}
}

func Kind(buf []byte) types.PageKind { return types.PageKind(buf[kindOffset]) }

func LSN(buf []byte) uint64 { return binary.LittleEndian.Uint64(buf[lsnOffset:]) }

func SetLSN(buf []byte, lsn uint64) {
	binary.LittleEndian.PutUint64(buf[lsnOffset:], lsn)
}

// Checksum hashes the whole page except the checksum field itself.
func Checksum(buf []byte) uint32 {
	var zero [4]byte
	d := xxhash.New()
	d.Write(buf[:checksumOffset])
	d.Write(zero[:])
	d.Write(buf[checksumOffset+4:])
	return uint32(d.Sum64())
}

// Seal stores the page checksum in its header.
func Seal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[checksumOffset:], Checksum(buf))
}

// Verify reports whether the stored checksum matches the content. A page
// that was never written (all zero) is accepted as is.
func Verify(buf []byte) bool {
	stored := binary.LittleEndian.Uint32(buf[checksumOffset:])
	if stored == 0 && isZero(buf) {
		return true
	}
	return stored == Checksum(buf)
}

// NewBuffer returns a zeroed page sized buffer.
func NewBuffer() []byte {
	return make([]byte, PageSize)
}

func isZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
