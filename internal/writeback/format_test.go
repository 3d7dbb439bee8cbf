package writeback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical_Go(t *testing.T) {
	got, ok := Canonical([]byte("package main\n\nfunc A()  {\nreturn\n}\n"), "main.go")
	require.True(t, ok)
	assert.Equal(t, "package main\n\nfunc A() {\n\treturn\n}\n", string(got))
}

func TestCanonical_HCL(t *testing.T) {
	got, ok := Canonical([]byte("a=1\nbb = 2\n"), "main.tf")
	require.True(t, ok)
	assert.Equal(t, "a  = 1\nbb = 2\n", string(got))
}

func TestCanonical_Unsupported(t *testing.T) {
	_, ok := Canonical([]byte("def foo():\n  pass\n"), "main.py")
	assert.False(t, ok)
	_, ok = Canonical([]byte("func broken {{{"), "main.go")
	assert.False(t, ok)
}

func TestFormatDrift(t *testing.T) {
	assert.True(t, FormatDrift([]byte("package main\nfunc A()  {}\n"), "a.go"))
	assert.False(t, FormatDrift([]byte("package main\n\nfunc A() {}\n"), "a.go"))
	assert.False(t, FormatDrift([]byte("func broken {{{"), "a.go"))
	assert.False(t, FormatDrift([]byte("anything"), "a.txt"))
}

func TestDiagnose(t *testing.T) {
	ds := Diagnose([]byte("package main\n\nfunc hello() {\n\tx :=\n}\n"), "a.go")
	require.NotEmpty(t, ds)
	assert.NotZero(t, ds[0].Line)

	ds = Diagnose([]byte("package main\nfunc A()  {}\n"), "a.go")
	require.Len(t, ds, 1)
	assert.Equal(t, "a.go: not canonically formatted", ds[0].String())

	assert.Empty(t, Diagnose([]byte("package main\n\nfunc A() {}\n"), "a.go"))
}
