package writeback

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	sqllang "github.com/smacker/go-tree-sitter/sql"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"
)

// ValidationError locates one syntax error in generated output.
type ValidationError struct {
	FilePath string
	Line     uint32 // 0-indexed
	Column   uint32 // 0-indexed
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line+1, e.Column+1, e.Message)
}

// Validate returns the first syntax error of content, or nil. Output in a
// language without a grammar passes.
func Validate(content []byte, filePath string) error {
	root, err := parse(content, filePath)
	if err != nil {
		return err
	}
	if root == nil || !root.HasError() {
		return nil
	}
	var errs []ValidationError
	collectErrors(root, filePath, &errs, 1)
	if len(errs) == 0 {
		return &ValidationError{FilePath: filePath, Message: "AST contains errors"}
	}
	return &errs[0]
}

// ASTErrors returns every syntax error location in content. Generated
// templates often leave placeholders unset, so callers report these rather
// than refuse to write.
func ASTErrors(content []byte, filePath string) []ValidationError {
	root, err := parse(content, filePath)
	if err != nil || root == nil || !root.HasError() {
		return nil
	}
	var errs []ValidationError
	collectErrors(root, filePath, &errs, -1)
	return errs
}

// parse returns nil, nil for unknown languages.
func parse(content []byte, filePath string) (*sitter.Node, error) {
	lang := languageForPath(filePath)
	if lang == nil {
		return nil, nil
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed for %s: %w", filePath, err)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("tree-sitter returned nil root for %s", filePath)
	}
	return root, nil
}

// collectErrors gathers ERROR and MISSING nodes depth first, stopping after
// limit nodes when limit > 0.
func collectErrors(node *sitter.Node, filePath string, errs *[]ValidationError, limit int) {
	if limit > 0 && len(*errs) >= limit {
		return
	}
	if node.IsError() || node.IsMissing() {
		msg := "syntax error in AST"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %s", node.Type())
		}
		*errs = append(*errs, ValidationError{
			FilePath: filePath,
			Line:     node.StartPoint().Row,
			Column:   node.StartPoint().Column,
			Message:  msg,
		})
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsError() || child.IsMissing() {
			collectErrors(child, filePath, errs, limit)
		}
	}
}

// languageForPath maps output file extensions to tree-sitter grammars.
func languageForPath(filePath string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".go":
		return golang.GetLanguage()
	case ".py":
		return python.GetLanguage()
	case ".js":
		return javascript.GetLanguage()
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".java":
		return java.GetLanguage()
	case ".sql":
		return sqllang.GetLanguage()
	case ".tf", ".hcl":
		return hcl.GetLanguage()
	case ".yaml", ".yml":
		return yaml.GetLanguage()
	default:
		return nil
	}
}
