package writeback

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesDirs(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, WriteFileAtomic(fs, "a/b/c.go", []byte("package c\n")))

	got, err := ReadFile(fs, "a/b/c.go")
	require.NoError(t, err)
	assert.Equal(t, "package c\n", string(got))

	entries, err := fs.ReadDir("a/b")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, WriteFileAtomic(fs, "x.txt", []byte("old content")))
	require.NoError(t, WriteFileAtomic(fs, "x.txt", []byte("new")))

	got, err := ReadFile(fs, "x.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestSplice_ReplaceMiddle(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, WriteFileAtomic(fs, "f.go", []byte("func A() {}\nfunc B() {}\nfunc C() {}\n")))

	require.NoError(t, Splice(fs, "f.go", 12, 24, []byte("func B() { return 1 }\n")))
	got, _ := ReadFile(fs, "f.go")
	assert.Equal(t, "func A() {}\nfunc B() { return 1 }\nfunc C() {}\n", string(got))
}

func TestSplice_EmptyContent(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, WriteFileAtomic(fs, "f", []byte("AAA\nBBB\nCCC\n")))

	require.NoError(t, Splice(fs, "f", 4, 8, nil))
	got, _ := ReadFile(fs, "f")
	assert.Equal(t, "AAA\nCCC\n", string(got))
}

func TestSplice_InvalidRange(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, WriteFileAtomic(fs, "f", []byte("short")))

	assert.Error(t, Splice(fs, "f", 0, 100, []byte("x")))
	assert.Error(t, Splice(fs, "f", 3, 1, []byte("x")))
	assert.Error(t, Splice(fs, "nope.go", 0, 5, []byte("x")))
}

func TestExists(t *testing.T) {
	fs := memfs.New()
	assert.False(t, Exists(fs, "a"))
	require.NoError(t, WriteFileAtomic(fs, "a", nil))
	assert.True(t, Exists(fs, "a"))
}
