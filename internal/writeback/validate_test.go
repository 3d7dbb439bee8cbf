package writeback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidGo(t *testing.T) {
	src := []byte(`package main

func hello() string {
	return "world"
}
`)
	assert.NoError(t, Validate(src, "test.go"))
}

func TestValidate_BrokenGo(t *testing.T) {
	src := []byte(`package main

func hello() string {
	return "world"
// missing closing brace
`)
	err := Validate(src, "test.go")
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "test.go", ve.FilePath)
}

func TestValidate_UnsetPlaceholderIsSyntaxError(t *testing.T) {
	src := []byte("package $Package$\n\nfunc f() {}\n")
	assert.Error(t, Validate(src, "gen.go"))
}

func TestValidate_Languages(t *testing.T) {
	valid := map[string]string{
		"a.py":   "def hello():\n    return \"world\"\n",
		"a.js":   `function hello() { return "world"; }`,
		"a.ts":   "const x: number = 1;\n",
		"a.java": "class A { void f() {} }\n",
		"a.sql":  "SELECT 1;\n",
		"a.hcl":  "a = 1\n",
		"a.yaml": "a: 1\n",
	}
	for name, src := range valid {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Validate([]byte(src), name))
		})
	}
}

func TestValidate_BrokenPython(t *testing.T) {
	src := []byte(`def hello(
    return "world"
`)
	assert.Error(t, Validate(src, "test.py"))
}

func TestValidate_UnknownExtensionPassThrough(t *testing.T) {
	assert.NoError(t, Validate([]byte(`not code in any language {{{`), "test.txt"))
}

func TestValidate_EmptyContent(t *testing.T) {
	assert.NoError(t, Validate([]byte{}, "test.go"))
}

func TestASTErrors_BrokenGo(t *testing.T) {
	src := []byte(`package main

func hello() {
	x :=
}
`)
	errs := ASTErrors(src, "test.go")
	require.NotEmpty(t, errs)
	assert.Equal(t, "test.go", errs[0].FilePath)
}

func TestASTErrors_ValidGoReturnsNil(t *testing.T) {
	assert.Nil(t, ASTErrors([]byte("package main\n\nfunc hello() {}\n"), "test.go"))
}

func TestASTErrors_UnknownExtensionReturnsNil(t *testing.T) {
	assert.Nil(t, ASTErrors([]byte(`broken {{{`), "test.txt"))
}
