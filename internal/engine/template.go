package engine

import (
	"github.com/agentic-research/tracegen/internal/segment"
)

// Template is a handle to one composite of an engine's tree.
type Template struct {
	engine *Engine
	handle segment.Handle
	id     string
	reused bool
}

// ID returns the template's segment id.
func (t *Template) ID() string { return t.id }

// Reused reports whether the template came from the prior run.
func (t *Template) Reused() bool { return t.reused }

// Content returns the template's current text.
func (t *Template) Content() string {
	return t.engine.arena.Content(t.handle)
}

func (t *Template) variable(name string) (segment.Handle, bool) {
	return t.engine.arena.Lookup(t.id + ":" + name)
}

// SetVariable writes content into the variable name, e.g. "$Name$".
// Unprotected variables keep hand-edited content.
func (t *Template) SetVariable(name, content string) Outcome {
	o := Outcome{Template: t.id, Variable: name}
	h, ok := t.variable(name)
	if !ok {
		o.Kind = UnknownVariable
		return t.engine.record(o)
	}
	switch t.engine.arena.Write(h, content) {
	case segment.Written:
		o.Kind = Applied
	case segment.Conflict:
		o.Kind = IntegrityConflict
	case segment.NotContent:
		o.Kind = WrongKind
	default:
		o.Kind = WrongKind
	}
	return t.engine.record(o)
}

// SetVariableIfNotSet writes content only while the variable still holds its
// own placeholder text.
func (t *Template) SetVariableIfNotSet(name, content string) Outcome {
	h, ok := t.variable(name)
	if !ok {
		return t.engine.record(Outcome{Kind: UnknownVariable, Template: t.id, Variable: name})
	}
	s := t.engine.arena.Get(h)
	if !s.Kind.IsContent() || s.Text != name {
		return t.engine.record(Outcome{Kind: Skipped, Template: t.id, Variable: name})
	}
	return t.SetVariable(name, content)
}

// AppendVariable appends child as the next entry of the slot name. The
// first append turns the placeholder into an appendable slot with id
// "<template id>:<name>".
func (t *Template) AppendVariable(name string, child *Template) Outcome {
	return t.appendVariable(name, child, false)
}

// AppendVariableOnce is AppendVariable that does nothing when child is
// already in the slot.
func (t *Template) AppendVariableOnce(name string, child *Template) Outcome {
	return t.appendVariable(name, child, true)
}

func (t *Template) appendVariable(name string, child *Template, once bool) Outcome {
	o := Outcome{Template: t.id, Variable: name}
	arena := t.engine.arena
	h, ok := t.variable(name)
	if !ok {
		o.Kind = UnknownVariable
		return t.engine.record(o)
	}

	switch arena.Get(h).Kind {
	case segment.Appendable:
	case segment.Protected:
		arena.Replace(h, segment.Segment{Kind: segment.Appendable})
	case segment.Unprotected, segment.Composite:
		o.Kind = WrongKind
		return t.engine.record(o)
	default:
		o.Kind = WrongKind
		return t.engine.record(o)
	}

	if once && arena.Appended(h, child.id) {
		o.Kind = Skipped
		return t.engine.record(o)
	}
	arrange := func(prior, appended []string) []string {
		return t.engine.strategy.Arrange(name, prior, appended)
	}
	if err := arena.Append(h, child.handle, arrange); err != nil {
		o.Kind = WrongKind
		return t.engine.record(o)
	}
	o.Kind = Applied
	return t.engine.record(o)
}

// Trace records this template as generated on behalf of model element
// modelID of type typ.
func (t *Template) Trace(modelID, typ string) error {
	return t.engine.file.Trace(modelID, typ, t.id)
}
