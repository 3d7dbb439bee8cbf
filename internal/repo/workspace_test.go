package repo

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tracegen/api"
	"github.com/agentic-research/tracegen/internal/engine"
	"github.com/agentic-research/tracegen/internal/trace"
	"github.com/agentic-research/tracegen/internal/writeback"
)

const handler = "package $Package$\n\nfunc Handle() {\n-{$Body$\n\t// implement\n}-\n}\n"

func generated(t *testing.T, id string, paths ...string) *trace.TraceModel {
	t.Helper()
	m := trace.NewTraceModel(id)
	for _, p := range paths {
		e := engine.New(p, nil)
		tpl, err := e.CreateTemplate(p, handler)
		require.NoError(t, err)
		root := e.AddTemplate(tpl)
		root.SetVariable("$Package$", "api")
		require.NoError(t, root.Trace("svc-"+p, "Service"))
		f, err := e.File()
		require.NoError(t, err)
		m.Add(f)
	}
	return m
}

func TestWorkspace_PersistLoadRoundTrip(t *testing.T) {
	w := NewWorkspace(memfs.New(), "")
	m := generated(t, "gen-1", "api/a.go", "api/b.go")

	removed, err := w.Persist(m)
	require.NoError(t, err)
	assert.Empty(t, removed)

	idx, ok, err := w.Index()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"api/a.go", "api/b.go"}, idx.TracedFiles)
	assert.Equal(t, api.ModelFiles{Files: []string{"api/a.go"}}, idx.ModelsToFile["svc-api/a.go"])
	assert.Equal(t, "gen-1", idx.ID)

	loaded, errs, err := w.Load()
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, "gen-1", loaded.GenerationID)
	assert.Equal(t, m.Paths(), loaded.Paths())
	for _, p := range m.Paths() {
		want, _ := m.File(p)
		got, _ := loaded.File(p)
		assert.Equal(t, want.Content(), got.Content())
		_, wantDoc := trace.SerializeFile(want)
		_, gotDoc := trace.SerializeFile(got)
		assert.Equal(t, wantDoc, gotDoc)
	}

	content, err := writeback.ReadFile(w.Filesystem(), "api/a.go")
	require.NoError(t, err)
	assert.Contains(t, string(content), "package api\n")
}

func TestWorkspace_LoadEmpty(t *testing.T) {
	m, errs, err := NewWorkspace(memfs.New(), "").Load()
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Empty(t, m.Paths())
}

func TestWorkspace_PersistRemovesStaleFiles(t *testing.T) {
	fs := memfs.New()
	w := NewWorkspace(fs, "meta")
	_, err := w.Persist(generated(t, "gen-1", "a.go", "b.go"))
	require.NoError(t, err)

	removed, err := w.Persist(generated(t, "gen-2", "a.go"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, removed)
	assert.False(t, writeback.Exists(fs, "b.go"))
	assert.False(t, writeback.Exists(fs, "meta/b.go.traces"))

	idx, _, err := w.Index()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, idx.TracedFiles)
}

func TestWorkspace_LoadCollectsCorruptFiles(t *testing.T) {
	fs := memfs.New()
	w := NewWorkspace(fs, "")
	_, err := w.Persist(generated(t, "gen-1", "a.go", "b.go"))
	require.NoError(t, err)

	// A length-changing edit behind the workspace's back.
	require.NoError(t, writeback.WriteFileAtomic(fs, "a.go", []byte("package api\n")))

	m, failed, err := w.Load()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed["a.go"], trace.ErrCorrupt))
	assert.Equal(t, []string{"b.go"}, m.Paths())
}

func TestWorkspace_LoadSkipsDeletedFiles(t *testing.T) {
	fs := memfs.New()
	w := NewWorkspace(fs, "")
	_, err := w.Persist(generated(t, "gen-1", "a.go", "b.go"))
	require.NoError(t, err)
	require.NoError(t, fs.Remove("a.go"))

	m, failed, err := w.Load()
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, []string{"b.go"}, m.Paths())
}

func TestWorkspace_PersistLeavesKeptFilesAlone(t *testing.T) {
	fs := memfs.New()
	w := NewWorkspace(fs, "")
	_, err := w.Persist(generated(t, "gen-1", "a.go", "b.go"))
	require.NoError(t, err)
	edited := []byte("package api\n\n// rewritten by hand\n")
	require.NoError(t, writeback.WriteFileAtomic(fs, "a.go", edited))
	traces, err := writeback.ReadFile(fs, "traces/a.go.traces")
	require.NoError(t, err)

	removed, err := w.Persist(generated(t, "gen-2", "b.go"), "a.go")
	require.NoError(t, err)
	assert.Empty(t, removed)

	content, err := writeback.ReadFile(fs, "a.go")
	require.NoError(t, err)
	assert.Equal(t, edited, content)
	after, err := writeback.ReadFile(fs, "traces/a.go.traces")
	require.NoError(t, err)
	assert.Equal(t, traces, after)

	idx, _, err := w.Index()
	require.NoError(t, err)
	assert.Equal(t, "gen-2", idx.ID)
	assert.Equal(t, []string{"a.go", "b.go"}, idx.TracedFiles)
	assert.Equal(t, api.ModelFiles{Files: []string{"a.go"}}, idx.ModelsToFile["svc-a.go"])
}

func TestWorkspace_EditSurvivesReload(t *testing.T) {
	fs := memfs.New()
	w := NewWorkspace(fs, "")
	m := generated(t, "gen-1", "a.go")
	_, err := w.Persist(m)
	require.NoError(t, err)

	body := "$Body$\n\treturn // by hand\n"
	require.NoError(t, w.Edit(m, "a.go", "a.go:$Body$", body))

	content, err := writeback.ReadFile(fs, "a.go")
	require.NoError(t, err)
	assert.Contains(t, string(content), "return // by hand")

	loaded, errs, err := w.Load()
	require.NoError(t, err)
	require.Empty(t, errs)
	f, _ := loaded.File("a.go")
	seg, ok := f.Lookup("a.go:$Body$")
	require.True(t, ok)
	assert.Equal(t, body, seg.Text)

	orig, _ := m.File("a.go")
	origSeg, _ := orig.Lookup("a.go:$Body$")
	assert.Equal(t, origSeg.Hash, seg.Hash)
}

func TestWorkspace_EditErrors(t *testing.T) {
	w := NewWorkspace(memfs.New(), "")
	m := generated(t, "gen-1", "a.go")
	_, err := w.Persist(m)
	require.NoError(t, err)

	assert.ErrorIs(t, w.Edit(m, "nope.go", "x", "y"), ErrNotTraced)
	assert.Error(t, w.Edit(m, "a.go", "a.go:$Missing$", "y"))
	assert.ErrorIs(t, w.Edit(m, "a.go", "a.go:$Package$", "y"), trace.ErrNotEditable)
}

func TestWorkspace_DocumentIsJSON(t *testing.T) {
	fs := memfs.New()
	w := NewWorkspace(fs, "")
	_, err := w.Persist(generated(t, "gen-1", "a.go"))
	require.NoError(t, err)

	raw, err := writeback.ReadFile(fs, "traces/a.go.traces")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "traces")
	assert.Contains(t, doc, "traceSegments")
}
