package page

import (
	"KeelDB/types"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	buf := NewBuffer()
	want := Header{
		Kind:     types.PageKindLeaf,
		Flags:    FlagRoot,
		Count:    27,
		LSN:      9001,
		Next:     7,
		Prev:     3,
		Leftmost: 0,
	}
	EncodeHeader(buf, want)

	got := DecodeHeader(buf)
	if got != want {
		t.Fatalf("header round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
	if !got.IsRoot() {
		t.Error("expected root flag to survive")
	}
	if Kind(buf) != types.PageKindLeaf {
		t.Errorf("Kind = %v, want leaf", Kind(buf))
	}
}

func TestChecksumDetectsFlip(t *testing.T) {
	buf := NewBuffer()
	EncodeHeader(buf, Header{Kind: types.PageKindInternal, Count: 1, Leftmost: 2})
	copy(buf[HeaderSize:], []byte("payload"))
	Seal(buf)

	if !Verify(buf) {
		t.Fatal("sealed page failed verification")
	}

	buf[PageSize-1] ^= 0xFF
	if Verify(buf) {
		t.Fatal("bit flip in payload went undetected")
	}
}

func TestVerifyZeroPage(t *testing.T) {
	if !Verify(NewBuffer()) {
		t.Fatal("never written page should verify")
	}
}

func TestSetLSN(t *testing.T) {
	buf := NewBuffer()
	SetLSN(buf, 77)
	if LSN(buf) != 77 {
		t.Fatalf("LSN = %d, want 77", LSN(buf))
	}
	if DecodeHeader(buf).LSN != 77 {
		t.Fatal("header LSN disagrees with LSN()")
	}
}
