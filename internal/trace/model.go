// Package trace records which segments of which generated files exist on
// behalf of each model element, and converts segment trees to and from their
// persisted trace documents.
package trace

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/tracegen/internal/segment"
)

// ErrNotEditable is returned when a hand edit targets anything but an
// unprotected segment.
var ErrNotEditable = errors.New("only unprotected segments can be edited")

// Element is one model element's footprint in a file.
type Element struct {
	ID   string
	Type string

	// Handles of the owned segments. Handle order is allocation order,
	// which is the order the generator created them in.
	handles *roaring.Bitmap
}

// Owner identifies the model element a segment was generated for.
type Owner struct {
	ModelID string
	Type    string
}

// FileTraceModel is the trace of one generated file.
type FileTraceModel struct {
	Path string
	Tree *segment.Tree

	elements map[string]*Element
	order    []string // element ids, first traced first
}

// NewFileTraceModel wraps tree as the trace of path.
func NewFileTraceModel(path string, tree *segment.Tree) *FileTraceModel {
	return &FileTraceModel{
		Path:     path,
		Tree:     tree,
		elements: make(map[string]*Element),
	}
}

// Content returns the generated file text.
func (f *FileTraceModel) Content() string {
	return f.Tree.Content()
}

// Lookup finds a segment of this file by id.
func (f *FileTraceModel) Lookup(id string) (*segment.Segment, bool) {
	h, ok := f.Tree.Lookup(id)
	if !ok {
		return nil, false
	}
	return f.Tree.Arena.Get(h), true
}

// Edit replaces the text of an unprotected segment the way a human edit
// does: the integrity hash is left as it was.
func (f *FileTraceModel) Edit(segmentID, content string) error {
	h, ok := f.Tree.Lookup(segmentID)
	if !ok {
		return fmt.Errorf("edit: %w: %s", segment.ErrNotFound, segmentID)
	}
	s := f.Tree.Arena.Get(h)
	if s.Kind != segment.Unprotected {
		return fmt.Errorf("edit %s (%v): %w", segmentID, s.Kind, ErrNotEditable)
	}
	s.Text = content
	return nil
}

// Span returns the byte range of the first occurrence of segmentID in the
// file content.
func (f *FileTraceModel) Span(segmentID string) (start, end int, ok bool) {
	target, found := f.Tree.Lookup(segmentID)
	if !found {
		return 0, 0, false
	}
	a := f.Tree.Arena
	off := 0
	a.Walk(f.Tree.Root, func(h segment.Handle, s *segment.Segment) bool {
		if ok {
			return false
		}
		if h == target {
			start, end, ok = off, off+a.Len(h), true
			return false
		}
		if s.Kind.IsContent() {
			off += len(s.Text)
		}
		return true
	})
	return start, end, ok
}

// Trace records segment segmentID as generated for model element modelID of
// type typ. A model element keeps the type it was first traced with.
func (f *FileTraceModel) Trace(modelID, typ, segmentID string) error {
	h, ok := f.Tree.Lookup(segmentID)
	if !ok {
		return fmt.Errorf("trace %s: %w: %s", modelID, segment.ErrNotFound, segmentID)
	}
	el, ok := f.elements[modelID]
	if !ok {
		el = &Element{ID: modelID, Type: typ, handles: roaring.New()}
		f.elements[modelID] = el
		f.order = append(f.order, modelID)
	} else if el.Type != typ {
		return fmt.Errorf("trace %s: type %q conflicts with %q", modelID, typ, el.Type)
	}
	el.handles.Add(uint32(h))
	return nil
}

// Element returns the footprint of modelID.
func (f *FileTraceModel) Element(modelID string) (*Element, bool) {
	el, ok := f.elements[modelID]
	return el, ok
}

// Elements returns every traced model element in first-traced order.
func (f *FileTraceModel) Elements() []*Element {
	out := make([]*Element, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.elements[id])
	}
	return out
}

// Segments returns the ids of the segments owned by el, in creation order.
func (f *FileTraceModel) Segments(el *Element) []string {
	out := make([]string, 0, el.handles.GetCardinality())
	it := el.handles.Iterator()
	for it.HasNext() {
		out = append(out, f.Tree.Arena.Get(segment.Handle(it.Next())).ID)
	}
	return out
}

// Owners maps every traced segment id to the element that owns it.
func (f *FileTraceModel) Owners() map[string]Owner {
	out := make(map[string]Owner)
	for _, id := range f.order {
		el := f.elements[id]
		it := el.handles.Iterator()
		for it.HasNext() {
			sid := f.Tree.Arena.Get(segment.Handle(it.Next())).ID
			if _, taken := out[sid]; !taken {
				out[sid] = Owner{ModelID: el.ID, Type: el.Type}
			}
		}
	}
	return out
}

// TraceModel holds every file of one generation run.
type TraceModel struct {
	GenerationID string

	files map[string]*FileTraceModel
}

// NewTraceModel returns an empty model for the given generation id.
func NewTraceModel(generationID string) *TraceModel {
	return &TraceModel{
		GenerationID: generationID,
		files:        make(map[string]*FileTraceModel),
	}
}

// Add registers f, replacing any file with the same path.
func (m *TraceModel) Add(f *FileTraceModel) {
	m.files[f.Path] = f
}

// File returns the trace of path.
func (m *TraceModel) File(path string) (*FileTraceModel, bool) {
	if m == nil {
		return nil, false
	}
	f, ok := m.files[path]
	return f, ok
}

// Paths returns the traced file paths, sorted.
func (m *TraceModel) Paths() []string {
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Files returns the traced files ordered by path.
func (m *TraceModel) Files() []*FileTraceModel {
	paths := m.Paths()
	out := make([]*FileTraceModel, len(paths))
	for i, p := range paths {
		out[i] = m.files[p]
	}
	return out
}

// ModelsToFile maps each model element id to the sorted paths it appears in.
func (m *TraceModel) ModelsToFile() map[string][]string {
	out := make(map[string][]string)
	for _, f := range m.Files() {
		for _, el := range f.Elements() {
			out[el.ID] = append(out[el.ID], f.Path)
		}
	}
	return out
}
