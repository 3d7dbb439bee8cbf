package writeback

import "fmt"

// Diagnostic is a non-blocking finding about generated output.
type Diagnostic struct {
	Path    string `json:"path"`
	Line    uint32 `json:"line,omitempty"` // 1-indexed, 0 when not positional
	Column  uint32 `json:"column,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Path, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.Path, d.Line, d.Column, d.Message)
}

// Diagnose collects syntax errors and formatting drift for one generated file.
func Diagnose(content []byte, filePath string) []Diagnostic {
	var out []Diagnostic
	for _, e := range ASTErrors(content, filePath) {
		out = append(out, Diagnostic{Path: filePath, Line: e.Line + 1, Column: e.Column + 1, Message: e.Message})
	}
	if len(out) == 0 && FormatDrift(content, filePath) {
		out = append(out, Diagnostic{Path: filePath, Message: "not canonically formatted"})
	}
	return out
}
