package trace

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agentic-research/tracegen/api"
	"github.com/agentic-research/tracegen/internal/segment"
)

// ErrCorrupt is matched by every *CorruptError.
var ErrCorrupt = errors.New("trace document corrupt")

// CorruptError reports a trace document that does not describe its content.
type CorruptError struct {
	Path   string
	Reason string
}

func (e *CorruptError) Error() string {
	if e.Path == "" {
		return "corrupt trace: " + e.Reason
	}
	return fmt.Sprintf("corrupt trace for %s: %s", e.Path, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorrupt }

func typeOf(k segment.Kind) api.SegmentType {
	switch k {
	case segment.Protected:
		return api.Protected
	case segment.Unprotected:
		return api.Unprotected
	case segment.Composite:
		return api.Composite
	case segment.Appendable:
		return api.Appendable
	default:
		return api.SegmentType(k.String())
	}
}

// Serialize renders tree into its file text and trace segments. The root is
// the single top-level entry.
func Serialize(tree *segment.Tree) (string, []api.TraceSegment) {
	return tree.Content(), []api.TraceSegment{describe(tree.Arena, tree.Root)}
}

func describe(a *segment.Arena, h segment.Handle) api.TraceSegment {
	s := a.Get(h)
	ts := api.TraceSegment{ID: s.ID, Type: typeOf(s.Kind), Length: a.Len(h)}
	switch s.Kind {
	case segment.Protected:
	case segment.Unprotected:
		ts.IntegrityCheck = s.Integrity
		ts.Hash = s.Hash
	case segment.Composite, segment.Appendable:
		ts.TraceSegments = make([]api.TraceSegment, 0, len(s.Children))
		for _, c := range s.Children {
			ts.TraceSegments = append(ts.TraceSegments, describe(a, c))
		}
	default:
	}
	return ts
}

// SerializeFile renders f into its file text and `.traces` document.
func SerializeFile(f *FileTraceModel) (string, api.FileTraces) {
	text, segs := Serialize(f.Tree)
	doc := api.FileTraces{
		Traces:        make(map[string]api.ElementTrace, len(f.order)),
		TraceSegments: segs,
	}
	for _, el := range f.Elements() {
		doc.Traces[el.ID] = api.ElementTrace{Type: el.Type, Segments: f.Segments(el)}
	}
	return text, doc
}

// Reconstruct rebuilds a segment tree by slicing text with the lengths in
// segs. Lengths must account for text exactly.
func Reconstruct(text string, segs []api.TraceSegment) (*segment.Tree, error) {
	if len(segs) != 1 {
		return nil, &CorruptError{Reason: fmt.Sprintf("want one root segment, got %d", len(segs))}
	}
	r := &rebuilder{arena: segment.NewArena(), text: text}
	root, err := r.build(segs[0])
	if err != nil {
		return nil, err
	}
	if k := r.arena.Get(root).Kind; k != segment.Composite && k != segment.Appendable {
		return nil, &CorruptError{Reason: fmt.Sprintf("root %s is %v", segs[0].ID, k)}
	}
	if r.off != len(text) {
		return nil, &CorruptError{Reason: fmt.Sprintf("segments cover %d of %d bytes", r.off, len(text))}
	}
	return &segment.Tree{Arena: r.arena, Root: root}, nil
}

// ReconstructFile rebuilds the trace of path from its content and document.
func ReconstructFile(path, text string, doc api.FileTraces) (*FileTraceModel, error) {
	tree, err := Reconstruct(text, doc.TraceSegments)
	if err != nil {
		var ce *CorruptError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	f := NewFileTraceModel(path, tree)

	modelIDs := make([]string, 0, len(doc.Traces))
	for id := range doc.Traces {
		modelIDs = append(modelIDs, id)
	}
	sort.Strings(modelIDs)
	for _, id := range modelIDs {
		et := doc.Traces[id]
		for _, sid := range et.Segments {
			if _, ok := tree.Lookup(sid); !ok {
				return nil, &CorruptError{Path: path, Reason: fmt.Sprintf("element %s references unknown segment %s", id, sid)}
			}
			if err := f.Trace(id, et.Type, sid); err != nil {
				return nil, &CorruptError{Path: path, Reason: err.Error()}
			}
		}
	}
	return f, nil
}

type rebuilder struct {
	arena *segment.Arena
	text  string
	off   int
}

func (r *rebuilder) build(ts api.TraceSegment) (segment.Handle, error) {
	kind, err := segment.ParseKind(string(ts.Type))
	if err != nil {
		return 0, &CorruptError{Reason: fmt.Sprintf("segment %s: %v", ts.ID, err)}
	}
	if ts.Length < 0 {
		return 0, &CorruptError{Reason: fmt.Sprintf("segment %s has negative length", ts.ID)}
	}

	// A repeated id is another occurrence of the same instance.
	if h, ok := r.arena.Lookup(ts.ID); ok {
		if k := r.arena.Get(h).Kind; k != kind {
			return 0, &CorruptError{Reason: fmt.Sprintf("segment %s repeated as %v, first seen as %v", ts.ID, kind, k)}
		}
		if n := r.arena.Len(h); n != ts.Length {
			return 0, &CorruptError{Reason: fmt.Sprintf("segment %s repeated with length %d, first seen with %d", ts.ID, ts.Length, n)}
		}
		if r.off+ts.Length > len(r.text) {
			return 0, r.overrun(ts)
		}
		r.off += ts.Length
		return h, nil
	}

	switch kind {
	case segment.Protected, segment.Unprotected:
		if r.off+ts.Length > len(r.text) {
			return 0, r.overrun(ts)
		}
		s := segment.Segment{ID: ts.ID, Kind: kind, Text: r.text[r.off : r.off+ts.Length]}
		if kind == segment.Unprotected {
			s.Integrity = ts.IntegrityCheck
			s.Hash = ts.Hash
		}
		r.off += ts.Length
		return r.add(s)
	case segment.Composite, segment.Appendable:
		h, err := r.add(segment.Segment{ID: ts.ID, Kind: kind})
		if err != nil {
			return 0, err
		}
		start := r.off
		children := make([]segment.Handle, 0, len(ts.TraceSegments))
		for _, c := range ts.TraceSegments {
			ch, err := r.build(c)
			if err != nil {
				return 0, err
			}
			children = append(children, ch)
		}
		if got := r.off - start; got != ts.Length {
			return 0, &CorruptError{Reason: fmt.Sprintf("segment %s declares length %d, children sum to %d", ts.ID, ts.Length, got)}
		}
		r.arena.Get(h).Children = children
		return h, nil
	default:
		return 0, &CorruptError{Reason: fmt.Sprintf("segment %s: unhandled kind %v", ts.ID, kind)}
	}
}

func (r *rebuilder) add(s segment.Segment) (segment.Handle, error) {
	h, err := r.arena.Add(s)
	if err != nil {
		return 0, &CorruptError{Reason: err.Error()}
	}
	return h, nil
}

func (r *rebuilder) overrun(ts api.TraceSegment) error {
	return &CorruptError{Reason: fmt.Sprintf("segment %s (length %d at offset %d) overruns %d bytes of content", ts.ID, ts.Length, r.off, len(r.text))}
}
