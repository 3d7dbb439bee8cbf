// Package engine builds the segment tree of one generated file from
// templates, reusing prior-run segments through a Strategy.
package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/agentic-research/tracegen/internal/segment"
	"github.com/agentic-research/tracegen/internal/tokenize"
	"github.com/agentic-research/tracegen/internal/trace"
)

// ErrNoRoot is returned when a file is requested before AddTemplate.
var ErrNoRoot = errors.New("no root template registered")

// Engine is a mutable builder over the tree of one file. It is not safe for
// concurrent use; one generation pass owns it from start to serialization.
type Engine struct {
	strategy Strategy
	arena    *segment.Arena
	file     *trace.FileTraceModel
	hasRoot  bool
	outcomes []Outcome
}

// New returns an engine for the file at path. A nil strategy means Initial.
func New(path string, strategy Strategy) *Engine {
	if strategy == nil {
		strategy = Initial{}
	}
	arena := segment.NewArena()
	return &Engine{
		strategy: strategy,
		arena:    arena,
		file:     trace.NewFileTraceModel(path, &segment.Tree{Arena: arena}),
	}
}

// CreateTemplate returns the template id built from source. When the
// strategy can reuse a prior composite with that id, it is taken verbatim
// and source is not consulted beyond tokenizing.
func (e *Engine) CreateTemplate(id, source string) (*Template, error) {
	initial, err := tokenize.Tokenize(source)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}

	if h, ok := e.arena.Lookup(id); ok {
		if k := e.arena.Get(h).Kind; k != segment.Composite {
			return nil, fmt.Errorf("template %s: id already used by a %v segment", id, k)
		}
		return &Template{engine: e, handle: h, id: id}, nil
	}

	h, reused, err := e.strategy.Reuse(e.arena, id, segment.Composite)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}
	if reused {
		log.Debug().Str("template", id).Str("strategy", e.strategy.Name()).Msg("reusing prior segment")
		return &Template{engine: e, handle: h, id: id, reused: true}, nil
	}

	h, err = e.build(id, initial)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}
	return &Template{engine: e, handle: h, id: id}, nil
}

// build slices an initial trace into a fresh composite. Repeated token ids
// become repeated references to one segment.
func (e *Engine) build(id string, initial tokenize.InitialTrace) (segment.Handle, error) {
	root, err := e.arena.Add(segment.Segment{ID: id, Kind: segment.Composite})
	if err != nil {
		return 0, err
	}
	texts := initial.Slice()
	children := make([]segment.Handle, 0, len(initial.Entries))
	for i, entry := range initial.Entries {
		childID := id + ":" + entry.ID
		if h, ok := e.arena.Lookup(childID); ok {
			children = append(children, h)
			continue
		}
		s := segment.Segment{ID: childID, Kind: entry.Kind, Text: texts[i]}
		if entry.Integrity {
			s.Integrity = true
			s.Hash = segment.Hash(s.Text)
		}
		h, err := e.arena.Add(s)
		if err != nil {
			return 0, err
		}
		children = append(children, h)
	}
	e.arena.Get(root).Children = children
	return root, nil
}

// AddTemplate registers t as the root of the file and returns the template
// callers must keep using. CreateTemplate already consulted the strategy, so
// t is the prior-run node whenever one existed.
func (e *Engine) AddTemplate(t *Template) *Template {
	e.file.Tree.Root = t.handle
	e.hasRoot = true
	return t
}

// Content returns the current text of the file.
func (e *Engine) Content() (string, error) {
	if !e.hasRoot {
		return "", ErrNoRoot
	}
	return e.arena.Content(e.file.Tree.Root), nil
}

// File returns the file's trace model once a root is registered.
func (e *Engine) File() (*trace.FileTraceModel, error) {
	if !e.hasRoot {
		return nil, fmt.Errorf("file %s: %w", e.file.Path, ErrNoRoot)
	}
	return e.file, nil
}

// Outcomes returns every mutation of this pass that did not apply, in call
// order.
func (e *Engine) Outcomes() []Outcome {
	return append([]Outcome(nil), e.outcomes...)
}

func (e *Engine) record(o Outcome) Outcome {
	switch o.Kind {
	case Applied, Skipped:
	case IntegrityConflict:
		log.Warn().Str("template", o.Template).Str("variable", o.Variable).Msg("kept hand-edited content")
		e.outcomes = append(e.outcomes, o)
	case UnknownVariable, WrongKind:
		log.Debug().Str("template", o.Template).Str("variable", o.Variable).Stringer("outcome", o.Kind).Msg("variable not set")
		e.outcomes = append(e.outcomes, o)
	default:
		e.outcomes = append(e.outcomes, o)
	}
	return o
}

// BuildTree tokenizes source into the root template id of a fresh file tree.
func BuildTree(id, source string, strategy Strategy) (*segment.Tree, error) {
	e := New("", strategy)
	t, err := e.CreateTemplate(id, source)
	if err != nil {
		return nil, err
	}
	e.AddTemplate(t)
	return e.file.Tree, nil
}
