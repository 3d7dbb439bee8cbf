package engine

import (
	"fmt"

	"github.com/agentic-research/tracegen/internal/segment"
)

// Strategy decides which prior-run segments a generation pass reuses and how
// appendable slots are ordered.
type Strategy interface {
	// Name identifies the strategy in logs and archives.
	Name() string
	// Reuse copies the prior-run segment id into dst when it exists with the
	// requested kind. ok is false when nothing can be reused.
	Reuse(dst *segment.Arena, id string, kind segment.Kind) (h segment.Handle, ok bool, err error)
	// Arrange returns the child order of the appendable slot named variable.
	Arrange(variable string, prior, appended []string) []string
}

// Initial always generates fresh segments.
type Initial struct{}

func (Initial) Name() string { return "initial" }

func (Initial) Reuse(*segment.Arena, string, segment.Kind) (segment.Handle, bool, error) {
	return 0, false, nil
}

func (Initial) Arrange(_ string, _, appended []string) []string { return appended }

// Synchronization reuses segments of the previous run by id so hand edits in
// unprotected regions survive regeneration. Appendable slots are copied empty
// and refilled by this run's appends, in append order.
type Synchronization struct {
	old *segment.Tree
}

// NewSynchronization reuses segments from old. A nil old behaves like Initial.
func NewSynchronization(old *segment.Tree) *Synchronization {
	return &Synchronization{old: old}
}

func (s *Synchronization) Name() string { return "sync" }

func (s *Synchronization) Reuse(dst *segment.Arena, id string, kind segment.Kind) (segment.Handle, bool, error) {
	if s.old == nil {
		return 0, false, nil
	}
	oh, ok := s.old.Lookup(id)
	if !ok || s.old.Arena.Get(oh).Kind != kind {
		return 0, false, nil
	}
	h, err := copySegment(dst, s.old.Arena, oh)
	if err != nil {
		return 0, false, err
	}
	return h, true, nil
}

func (s *Synchronization) Arrange(_ string, _, appended []string) []string { return appended }

// SynchronizationOrdered is Synchronization with prior-run ordering for
// appendable slots: survivors keep their old relative order and genuinely
// new children follow in append order. When slots is empty every appendable
// slot is ordered this way.
type SynchronizationOrdered struct {
	Synchronization
	slots map[string]bool
}

// NewSynchronizationOrdered reuses segments from old and keeps prior order
// for the named slot variables (all slots when none are given).
func NewSynchronizationOrdered(old *segment.Tree, slots ...string) *SynchronizationOrdered {
	s := &SynchronizationOrdered{Synchronization: Synchronization{old: old}}
	if len(slots) > 0 {
		s.slots = make(map[string]bool, len(slots))
		for _, v := range slots {
			s.slots[v] = true
		}
	}
	return s
}

func (s *SynchronizationOrdered) Name() string { return "ordered" }

func (s *SynchronizationOrdered) Arrange(variable string, prior, appended []string) []string {
	if s.slots != nil && !s.slots[variable] {
		return appended
	}
	return stableMerge(prior, appended)
}

// stableMerge returns the ids of prior that were appended again, in prior
// order, followed by the appended ids that prior did not know. An id appended
// more than once keeps every occurrence at its merged position.
func stableMerge(prior, appended []string) []string {
	count := make(map[string]int, len(appended))
	for _, id := range appended {
		count[id]++
	}
	known := make(map[string]bool, len(prior))
	out := make([]string, 0, len(appended))
	for _, id := range prior {
		known[id] = true
		for ; count[id] > 0; count[id]-- {
			out = append(out, id)
		}
	}
	for _, id := range appended {
		if !known[id] {
			out = append(out, id)
		}
	}
	return out
}

// copySegment copies oh from src into dst. Content keeps its text and hash;
// composites are copied recursively; appendable slots start empty and keep
// the prior child order so re-created children resolve from src on demand.
func copySegment(dst, src *segment.Arena, oh segment.Handle) (segment.Handle, error) {
	old := src.Get(oh)
	if h, ok := dst.Lookup(old.ID); ok {
		if k := dst.Get(h).Kind; k != old.Kind {
			return 0, fmt.Errorf("reuse %s: already present as %v", old.ID, k)
		}
		return h, nil
	}
	switch old.Kind {
	case segment.Protected, segment.Unprotected:
		return dst.Add(segment.Segment{
			ID:        old.ID,
			Kind:      old.Kind,
			Text:      old.Text,
			Integrity: old.Integrity,
			Hash:      old.Hash,
		})
	case segment.Composite:
		children := make([]segment.Handle, 0, len(old.Children))
		for _, c := range old.Children {
			h, err := copySegment(dst, src, c)
			if err != nil {
				return 0, err
			}
			children = append(children, h)
		}
		return dst.Add(segment.Segment{ID: old.ID, Kind: segment.Composite, Children: children})
	case segment.Appendable:
		prior := make([]string, 0, len(old.Children))
		for _, c := range old.Children {
			prior = append(prior, src.Get(c).ID)
		}
		return dst.Add(segment.Segment{ID: old.ID, Kind: segment.Appendable, Prior: prior})
	default:
		return 0, fmt.Errorf("reuse %s: unhandled kind %v", old.ID, old.Kind)
	}
}
