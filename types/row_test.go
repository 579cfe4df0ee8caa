package types

import (
	"KeelDB/dberrors"
	"errors"
	"strings"
	"testing"
)

func TestRowEncodeDecode(t *testing.T) {
	row := Row{ID: 42, Username: "user42", Email: "person42@example.com"}

	buf, err := row.Encode()
	if err != nil {
		t.Fatalf("Failed to encode row: %v", err)
	}
	if len(buf) != RowSize {
		t.Fatalf("encoded row is %d bytes, want %d", len(buf), RowSize)
	}

	got, err := DecodeRow(buf)
	if err != nil {
		t.Fatalf("Failed to decode row: %v", err)
	}
	if got != row {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, row)
	}
}

func TestRowFullWidthColumns(t *testing.T) {
	row := Row{
		ID:       1,
		Username: strings.Repeat("u", UsernameSize),
		Email:    strings.Repeat("e", EmailSize),
	}
	buf, err := row.Encode()
	if err != nil {
		t.Fatalf("Failed to encode full width row: %v", err)
	}
	got, err := DecodeRow(buf)
	if err != nil {
		t.Fatalf("Failed to decode row: %v", err)
	}
	if got != row {
		t.Errorf("full width round trip mismatch")
	}
}

func TestRowValidation(t *testing.T) {
	cases := []Row{
		{ID: 1, Username: strings.Repeat("u", UsernameSize+1)},
		{ID: 1, Email: strings.Repeat("e", EmailSize+1)},
		{ID: 1, Username: "a\x00b"},
	}
	for _, row := range cases {
		_, err := row.Encode()
		if !errors.Is(err, dberrors.ErrInvalidInput) {
			t.Errorf("Encode(%q, %d byte email) = %v, want validation error", row.Username, len(row.Email), err)
		}
	}
}

func TestDecodeRowWrongSize(t *testing.T) {
	if _, err := DecodeRow(make([]byte, RowSize-1)); err == nil {
		t.Fatal("expected error for short payload")
	}
}

func TestHashEmailDeterministic(t *testing.T) {
	a := HashEmail("person5000@example.com")
	b := HashEmail("person5000@example.com")
	if a != b {
		t.Fatalf("hash not deterministic: %d vs %d", a, b)
	}
	if HashEmail("person5001@example.com") == a {
		t.Errorf("adjacent emails hashed to the same value")
	}
	row := Row{ID: 5000, Email: "person5000@example.com"}
	if row.EmailHash() != a {
		t.Errorf("EmailHash disagrees with HashEmail")
	}
}
