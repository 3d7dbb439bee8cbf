package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownVariable means the template declares no such variable.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrIntegrityConflict means an unprotected segment was edited since its
	// hash was last trusted; the edited content was kept.
	ErrIntegrityConflict = errors.New("integrity conflict")
	// ErrWrongKind means the variable's segment kind does not support the
	// operation: setting a composite slot, or appending to unprotected text.
	ErrWrongKind = errors.New("operation not supported by variable kind")
)

// OutcomeKind classifies the effect of a Template mutation.
type OutcomeKind uint8

const (
	Applied OutcomeKind = iota
	// Skipped covers SetVariableIfNotSet on a touched variable and
	// AppendVariableOnce on a child that is already present.
	Skipped
	UnknownVariable
	IntegrityConflict
	WrongKind
)

func (k OutcomeKind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case UnknownVariable:
		return "unknown-variable"
	case IntegrityConflict:
		return "integrity-conflict"
	case WrongKind:
		return "wrong-kind"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// Outcome is returned by every Template mutation. Callers may ignore it;
// the engine keeps the non-applied ones for later inspection.
type Outcome struct {
	Kind     OutcomeKind
	Template string // owning template id
	Variable string
}

// Err maps warning outcomes onto sentinel errors. Applied and Skipped
// return nil.
func (o Outcome) Err() error {
	var base error
	switch o.Kind {
	case Applied, Skipped:
		return nil
	case UnknownVariable:
		base = ErrUnknownVariable
	case IntegrityConflict:
		base = ErrIntegrityConflict
	case WrongKind:
		base = ErrWrongKind
	default:
		return fmt.Errorf("unhandled outcome %v", o.Kind)
	}
	return fmt.Errorf("%s %s: %w", o.Template, o.Variable, base)
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s %s: %v", o.Template, o.Variable, o.Kind)
}
