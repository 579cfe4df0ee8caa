package types

import "fmt"

const (
	PageSize       = 8192 // 8KB page
	PageHeaderSize = 32   // common header at the start of every page
)

// PageNumber is the zero-based index of a page in the main file.
// Page 0 holds the file header, so 0 doubles as the "no page" marker
// inside sibling, child and free-list links.
type PageNumber uint32

const InvalidPage PageNumber = 0

type PageKind uint8

const (
	PageKindUnused PageKind = iota
	PageKindHeader
	PageKindLeaf
	PageKindInternal
	PageKindFree
)

func (k PageKind) String() string {
	switch k {
	case PageKindUnused:
		return "unused"
	case PageKindHeader:
		return "header"
	case PageKindLeaf:
		return "leaf"
	case PageKindInternal:
		return "internal"
	case PageKindFree:
		return "free"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}
