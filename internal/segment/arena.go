package segment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateID is returned when an id is already allocated in the arena.
	ErrDuplicateID = errors.New("segment id already exists")
	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("segment not found")
)

// Arena stores the segments of one generated file.
type Arena struct {
	segs []Segment
	ids  map[string]Handle
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{ids: make(map[string]Handle)}
}

// Add allocates a segment and returns its handle.
func (a *Arena) Add(s Segment) (Handle, error) {
	if _, ok := a.ids[s.ID]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
	}
	h := Handle(len(a.segs))
	a.segs = append(a.segs, s)
	a.ids[s.ID] = h
	return h, nil
}

// Get returns the segment behind h. The pointer is valid until the next Add.
func (a *Arena) Get(h Handle) *Segment {
	return &a.segs[h]
}

// Lookup resolves an id.
func (a *Arena) Lookup(id string) (Handle, bool) {
	h, ok := a.ids[id]
	return h, ok
}

// Size returns the number of allocated segments.
func (a *Arena) Size() int {
	return len(a.segs)
}

// Replace rewrites the segment behind h in place, keeping its id. Every
// reference to h observes the new value.
func (a *Arena) Replace(h Handle, s Segment) {
	s.ID = a.segs[h].ID
	a.segs[h] = s
}

// Len returns the serialized length of h in bytes.
func (a *Arena) Len(h Handle) int {
	s := &a.segs[h]
	switch s.Kind {
	case Protected, Unprotected:
		return len(s.Text)
	case Composite, Appendable:
		n := 0
		for _, c := range s.Children {
			n += a.Len(c)
		}
		return n
	default:
		return 0
	}
}

// Content returns the text of h with all children concatenated in order.
func (a *Arena) Content(h Handle) string {
	var b strings.Builder
	b.Grow(a.Len(h))
	a.WriteTo(&b, h)
	return b.String()
}

// WriteTo appends the text of h to b.
func (a *Arena) WriteTo(b *strings.Builder, h Handle) {
	s := &a.segs[h]
	switch s.Kind {
	case Protected, Unprotected:
		b.WriteString(s.Text)
	case Composite, Appendable:
		for _, c := range s.Children {
			a.WriteTo(b, c)
		}
	default:
	}
}

// Write stores content into a content segment, honouring the integrity rule
// for Unprotected segments.
func (a *Arena) Write(h Handle, content string) WriteResult {
	s := &a.segs[h]
	switch s.Kind {
	case Protected:
		s.Text = content
		return Written
	case Unprotected:
		if s.Hash != "" && Hash(s.Text) != s.Hash {
			return Conflict
		}
		s.Text = content
		if s.Integrity {
			s.Hash = Hash(content)
		}
		return Written
	case Composite, Appendable:
		return NotContent
	default:
		return NotContent
	}
}

// Append adds child to the appendable slot h and reorders the slot with
// arrange. arrange receives the prior-run ids and this run's appended ids
// and returns the final order.
func (a *Arena) Append(h, child Handle, arrange func(prior, appended []string) []string) error {
	s := &a.segs[h]
	if s.Kind != Appendable {
		return fmt.Errorf("segment %s is %v, not appendable", s.ID, s.Kind)
	}
	s.appended = append(s.appended, child)
	ids := make([]string, len(s.appended))
	for i, c := range s.appended {
		ids[i] = a.segs[c].ID
	}
	order := ids
	if arrange != nil {
		order = arrange(s.Prior, ids)
	}
	children := make([]Handle, 0, len(order))
	for _, id := range order {
		c, ok := a.ids[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		children = append(children, c)
	}
	s.Children = children
	return nil
}

// Appended reports whether child id was appended to slot h during this run.
func (a *Arena) Appended(h Handle, id string) bool {
	for _, c := range a.segs[h].appended {
		if a.segs[c].ID == id {
			return true
		}
	}
	return false
}

// Walk visits h and its descendants depth first, in child order. Repeated
// references are visited at each occurrence. Returning false from fn skips
// the node's children.
func (a *Arena) Walk(h Handle, fn func(h Handle, s *Segment) bool) {
	s := &a.segs[h]
	if !fn(h, s) {
		return
	}
	switch s.Kind {
	case Protected, Unprotected:
	case Composite, Appendable:
		for _, c := range s.Children {
			a.Walk(c, fn)
		}
	default:
	}
}

// Tree is an arena together with the root of one generated file.
type Tree struct {
	Arena *Arena
	Root  Handle
}

// Content returns the full file text.
func (t *Tree) Content() string {
	return t.Arena.Content(t.Root)
}

// Lookup resolves an id within the tree's arena.
func (t *Tree) Lookup(id string) (Handle, bool) {
	return t.Arena.Lookup(id)
}
