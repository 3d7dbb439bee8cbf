// Package segment holds the per-file tree of generated text.
//
// A file's segments live in an Arena and are addressed by Handle. Kind is a
// closed set: every behaviour that depends on it switches over all four
// values.
package segment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind discriminates the segment variants.
type Kind uint8

const (
	// Protected text is regenerated verbatim on every run.
	Protected Kind = iota + 1
	// Unprotected text belongs to humans once generated.
	Unprotected
	// Composite is an ordered group of named children.
	Composite
	// Appendable is a Composite whose children are appended sub-templates.
	Appendable
)

func (k Kind) String() string {
	switch k {
	case Protected:
		return "protected"
	case Unprotected:
		return "unprotected"
	case Composite:
		return "composite"
	case Appendable:
		return "appendable"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "protected":
		return Protected, nil
	case "unprotected":
		return Unprotected, nil
	case "composite":
		return Composite, nil
	case "appendable":
		return Appendable, nil
	default:
		return 0, fmt.Errorf("unknown segment type %q", s)
	}
}

// IsContent reports whether segments of this kind hold literal text.
func (k Kind) IsContent() bool {
	switch k {
	case Protected, Unprotected:
		return true
	case Composite, Appendable:
		return false
	default:
		return false
	}
}

// Handle addresses a segment inside one Arena.
type Handle uint32

// Segment is one interval of generated text.
type Segment struct {
	ID   string
	Kind Kind

	// Content kinds.
	Text      string
	Integrity bool   // Unprotected only: writes are guarded by Hash
	Hash      string // "" means no trusted hash yet

	// Composite kinds. The same handle may occur more than once.
	Children []Handle

	// Appendable only. Prior lists the child ids of the previous run in their
	// old order; appended records this run's appends in call order.
	Prior    []string
	appended []Handle
}

// Hash returns the integrity hash of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// WriteResult tells whether a content write took effect.
type WriteResult uint8

const (
	// Written means the new content replaced the old one.
	Written WriteResult = iota
	// Conflict means the segment was edited since its hash was last trusted,
	// so the edited text was kept.
	Conflict
	// NotContent means the segment is a Composite kind and holds no text.
	NotContent
)
