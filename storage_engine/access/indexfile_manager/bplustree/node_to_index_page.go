package bplus

import (
	"KeelDB/dberrors"
	"KeelDB/storage_engine/page"
	"KeelDB/types"
	"encoding/binary"
	"fmt"
)

/*
EncodeNode writes a Node into an 8KB page buffer, DecodeNode reads it back.
This is the only place that knows entry offsets.

	Header (32 bytes, see storage_engine/page):
	  kind, root flag, entry count
	  leaf:      next / prev sibling
	  internal:  leftmost child (children[0])

	Body, packed fixed width entries starting at byte 32:
	  leaf:      count × [ key | value ]
	  internal:  count × [ separator | child uint32 ]   child i+1 follows separator i

Decoded keys and values are sub-slices of the page buffer, which the pager
hands out as a private copy.
*/

func EncodeNode(n *Node, l Layout) ([]byte, error) {
	buf := page.NewBuffer()
	count := len(n.Keys)

	h := page.Header{Kind: n.Kind, Count: uint16(count)}
	if n.IsRoot {
		h.Flags |= page.FlagRoot
	}

	off := page.HeaderSize
	switch n.Kind {
	case types.PageKindLeaf:
		if len(n.Values) != count {
			return nil, fmt.Errorf("encode leaf %d: %d keys but %d values", n.PageNum, count, len(n.Values))
		}
		if page.HeaderSize+count*l.leafEntrySize() > page.PageSize {
			return nil, fmt.Errorf("encode leaf %d: %d entries overflow the page", n.PageNum, count)
		}
		h.Next, h.Prev = n.Next, n.Prev
		for i := 0; i < count; i++ {
			if len(n.Keys[i]) != l.KeySize || len(n.Values[i]) != l.ValueSize {
				return nil, fmt.Errorf("encode leaf %d: entry %d has sizes %d/%d, want %d/%d",
					n.PageNum, i, len(n.Keys[i]), len(n.Values[i]), l.KeySize, l.ValueSize)
			}
			off += copy(buf[off:], n.Keys[i])
			off += copy(buf[off:], n.Values[i])
		}

	case types.PageKindInternal:
		if len(n.Children) != count+1 {
			return nil, fmt.Errorf("encode internal %d: %d separators but %d children", n.PageNum, count, len(n.Children))
		}
		if page.HeaderSize+count*l.internalEntrySize() > page.PageSize {
			return nil, fmt.Errorf("encode internal %d: %d separators overflow the page", n.PageNum, count)
		}
		h.Leftmost = n.Children[0]
		sks := l.sortKeySize()
		for i := 0; i < count; i++ {
			if len(n.Keys[i]) != sks {
				return nil, fmt.Errorf("encode internal %d: separator %d is %d bytes, want %d", n.PageNum, i, len(n.Keys[i]), sks)
			}
			off += copy(buf[off:], n.Keys[i])
			binary.LittleEndian.PutUint32(buf[off:], uint32(n.Children[i+1]))
			off += 4
		}

	default:
		return nil, fmt.Errorf("encode node %d: kind %v is not a tree node", n.PageNum, n.Kind)
	}

	page.EncodeHeader(buf, h)
	return buf, nil
}

func DecodeNode(pn types.PageNumber, buf []byte, l Layout) (*Node, error) {
	if len(buf) != page.PageSize {
		return nil, fmt.Errorf("decode node %d: buffer is %d bytes", pn, len(buf))
	}

	h := page.DecodeHeader(buf)
	count := int(h.Count)
	n := &Node{
		PageNum: pn,
		Kind:    h.Kind,
		IsRoot:  h.IsRoot(),
		Keys:    make([][]byte, count),
	}

	off := page.HeaderSize
	switch h.Kind {
	case types.PageKindLeaf:
		if page.HeaderSize+count*l.leafEntrySize() > page.PageSize {
			return nil, dberrors.PageCorruptf("b+tree", uint32(pn), "leaf claims %d entries", count)
		}
		n.Next, n.Prev = h.Next, h.Prev
		n.Values = make([][]byte, count)
		ks, vs := l.KeySize, l.ValueSize
		for i := 0; i < count; i++ {
			n.Keys[i] = buf[off : off+ks : off+ks]
			off += ks
			n.Values[i] = buf[off : off+vs : off+vs]
			off += vs
		}

	case types.PageKindInternal:
		if page.HeaderSize+count*l.internalEntrySize() > page.PageSize {
			return nil, dberrors.PageCorruptf("b+tree", uint32(pn), "internal node claims %d separators", count)
		}
		n.Children = make([]types.PageNumber, count+1)
		n.Children[0] = h.Leftmost
		sks := l.sortKeySize()
		for i := 0; i < count; i++ {
			n.Keys[i] = buf[off : off+sks : off+sks]
			off += sks
			n.Children[i+1] = types.PageNumber(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
		}

	default:
		return nil, dberrors.PageCorruptf("b+tree", uint32(pn), "page kind %v is not a tree node", h.Kind)
	}

	return n, nil
}
