// Package tokenize turns template source into the flat list of segments the
// engine slices into a tree.
//
// Two token kinds exist. A placeholder is `$Name$` with Name drawn from
// [A-Za-z_]*. An unprotected block is `-{ ... }-`, matched non-greedily
// across lines; its body may open with a placeholder that becomes the block's
// stable id. Literal text in front of a token is named after that token.
package tokenize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentic-research/tracegen/internal/segment"
)

// ErrMalformedTemplate is matched by every *MalformedError.
var ErrMalformedTemplate = errors.New("malformed template")

// MalformedError describes why a template could not be tokenized.
type MalformedError struct {
	Offset int // byte offset in the template source
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed template at byte %d: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedTemplate }

const (
	// EndID names the literal text after the last token.
	EndID = "End"

	openBlock  = "-{"
	closeBlock = "}-"
)

var (
	tokenPattern       = regexp.MustCompile(`(?s)\$[A-Za-z_]*\$|-\{(.*?)\}-`)
	placeholderPattern = regexp.MustCompile(`^\$[A-Za-z_]*\$`)
)

// Entry is one segment of the initial trace, in file order.
type Entry struct {
	ID        string
	Kind      segment.Kind
	Length    int
	Integrity bool
}

// InitialTrace is the tokenizer output: entries that partition Text.
// Text is the template with the block delimiters removed.
type InitialTrace struct {
	Entries []Entry
	Text    string
}

// Slice returns the text covered by each entry, in order.
func (t InitialTrace) Slice() []string {
	out := make([]string, len(t.Entries))
	off := 0
	for i, e := range t.Entries {
		out[i] = t.Text[off : off+e.Length]
		off += e.Length
	}
	return out
}

// IsPlaceholder reports whether s is exactly one placeholder token.
func IsPlaceholder(s string) bool {
	loc := placeholderPattern.FindStringIndex(s)
	return loc != nil && loc[1] == len(s)
}

// Tokenize scans source once and returns its initial trace.
func Tokenize(source string) (InitialTrace, error) {
	var (
		trace     InitialTrace
		text      strings.Builder
		seen      = map[string]int{}          // token id -> occurrences so far
		kinds     = map[string]segment.Kind{} // token id -> kind of first use
		anonymous int
		last      int
	)
	text.Grow(len(source))

	emitLiteral := func(id, literal string, at int) error {
		if literal == "" {
			return nil
		}
		if i := strings.Index(literal, openBlock); i >= 0 {
			return &MalformedError{Offset: at + i, Reason: "unterminated unprotected block"}
		}
		trace.Entries = append(trace.Entries, Entry{ID: id, Kind: segment.Protected, Length: len(literal)})
		text.WriteString(literal)
		return nil
	}

	for _, m := range tokenPattern.FindAllStringSubmatchIndex(source, -1) {
		start, end := m[0], m[1]
		var (
			entry Entry
			body  string
		)
		if m[2] >= 0 {
			body = source[m[2]:m[3]]
			if loc := placeholderPattern.FindStringIndex(body); loc != nil {
				entry = Entry{ID: body[:loc[1]], Kind: segment.Unprotected, Integrity: true}
			} else {
				entry = Entry{ID: fmt.Sprintf("unprotected[%d]", anonymous), Kind: segment.Unprotected}
				anonymous++
			}
			entry.Length = len(body)
		} else {
			body = source[start:end]
			entry = Entry{ID: body, Kind: segment.Protected, Length: len(body)}
		}

		if k, ok := kinds[entry.ID]; ok && k != entry.Kind {
			return InitialTrace{}, &MalformedError{
				Offset: start,
				Reason: fmt.Sprintf("%s used both as %v and %v", entry.ID, k, entry.Kind),
			}
		}
		kinds[entry.ID] = entry.Kind

		n := seen[entry.ID]
		seen[entry.ID] = n + 1
		if err := emitLiteral(fmt.Sprintf("%sbefore[%d]", entry.ID, n), source[last:start], last); err != nil {
			return InitialTrace{}, err
		}
		trace.Entries = append(trace.Entries, entry)
		text.WriteString(body)
		last = end
	}

	if err := emitLiteral(EndID, source[last:], last); err != nil {
		return InitialTrace{}, err
	}
	if len(trace.Entries) == 0 {
		// Empty source still yields one End segment.
		trace.Entries = append(trace.Entries, Entry{ID: EndID, Kind: segment.Protected})
	}
	trace.Text = text.String()
	return trace, nil
}
