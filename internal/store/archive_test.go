package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/tracegen/internal/engine"
	"github.com/agentic-research/tracegen/internal/trace"
)

func openTest(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func model(t *testing.T, id string, files map[string]string) *trace.TraceModel {
	t.Helper()
	m := trace.NewTraceModel(id)
	for path, name := range files {
		e := engine.New(path, nil)
		tpl, err := e.CreateTemplate(path, "type $Name$ struct{}\n-{$Extra$\n}-\n")
		require.NoError(t, err)
		root := e.AddTemplate(tpl)
		root.SetVariable("$Name$", name)
		require.NoError(t, root.Trace(name, "Entity"))
		f, err := e.File()
		require.NoError(t, err)
		m.Add(f)
	}
	return m
}

func TestArchive_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := openTest(t)
	m := model(t, "gen-1", map[string]string{"a.go": "User", "b.go": "Order"})
	require.NoError(t, a.Record(ctx, "shop", "initial", m))

	snap, err := a.Snapshot(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, "gen-1", snap.GenerationID)
	assert.Equal(t, []string{"a.go", "b.go"}, snap.Paths())
	for _, p := range m.Paths() {
		want, _ := m.File(p)
		got, _ := snap.File(p)
		_, wantDoc := trace.SerializeFile(want)
		_, gotDoc := trace.SerializeFile(got)
		assert.Equal(t, want.Content(), got.Content())
		assert.Equal(t, wantDoc, gotDoc)
	}
}

func TestArchive_SnapshotNotFound(t *testing.T) {
	_, err := openTest(t).Snapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	a := openTest(t)
	require.NoError(t, a.Record(ctx, "shop", "initial", model(t, "gen-1", map[string]string{"a.go": "User"})))
	require.NoError(t, a.Record(ctx, "shop", "sync", model(t, "gen-2", map[string]string{"a.go": "User", "b.go": "Order"})))
	require.NoError(t, a.Record(ctx, "other", "initial", model(t, "gen-3", nil)))

	gens, err := a.List(ctx, "shop")
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, "gen-2", gens[0].ID)
	assert.Equal(t, "sync", gens[0].Strategy)
	assert.Equal(t, 2, gens[0].Files)
	assert.Equal(t, 1, gens[1].Files)

	latest, err := a.Latest(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, "gen-2", latest.ID)

	_, err = a.Latest(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_RecordIsAtomic(t *testing.T) {
	ctx := context.Background()
	a := openTest(t)
	require.NoError(t, a.Record(ctx, "shop", "initial", model(t, "gen-1", map[string]string{"a.go": "User"})))
	// Same id again violates the primary key; nothing of the second run lands.
	require.Error(t, a.Record(ctx, "shop", "initial", model(t, "gen-1", map[string]string{"z.go": "Zed"})))

	snap, err := a.Snapshot(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, snap.Paths())
}

func TestArchive_FilesForModel(t *testing.T) {
	ctx := context.Background()
	a := openTest(t)
	require.NoError(t, a.Record(ctx, "shop", "initial", model(t, "gen-1", map[string]string{"b.go": "User", "a.go": "User", "c.go": "Order"})))

	files, err := a.FilesForModel(ctx, "gen-1", "User")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, files)

	files, err = a.FilesForModel(ctx, "gen-1", "Nobody")
	require.NoError(t, err)
	assert.Empty(t, files)
}
