package writeback

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"mvdan.cc/gofumpt/format"
)

// Canonical returns content in its canonical formatting: gofumpt for Go,
// hclwrite for HCL. ok is false when the language has no formatter or the
// content does not parse.
func Canonical(content []byte, filePath string) (formatted []byte, ok bool) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".go":
		out, err := format.Source(content, format.Options{})
		if err != nil {
			return nil, false
		}
		return out, true
	case ".tf", ".hcl":
		if len(ASTErrors(content, filePath)) > 0 {
			return nil, false
		}
		return hclwrite.Format(content), true
	default:
		return nil, false
	}
}

// FormatDrift reports whether content differs from its canonical
// formatting. Generated files are never rewritten, since that would move
// the byte offsets their traces record.
func FormatDrift(content []byte, filePath string) bool {
	formatted, ok := Canonical(content, filePath)
	return ok && !bytes.Equal(formatted, content)
}
