package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T) (*Arena, Handle, Handle, Handle) {
	t.Helper()
	a := NewArena()
	p, err := a.Add(Segment{ID: "f:$X$", Kind: Protected, Text: "$X$"})
	require.NoError(t, err)
	sep, err := a.Add(Segment{ID: "f:$X$before[1]", Kind: Protected, Text: " = "})
	require.NoError(t, err)
	u, err := a.Add(Segment{ID: "f:$Y$", Kind: Unprotected, Text: "$Y$ body", Integrity: true, Hash: Hash("$Y$ body")})
	require.NoError(t, err)
	root, err := a.Add(Segment{ID: "f", Kind: Composite, Children: []Handle{p, sep, p, u}})
	require.NoError(t, err)
	return a, root, p, u
}

func TestArena_AddDuplicate(t *testing.T) {
	a := NewArena()
	_, err := a.Add(Segment{ID: "x", Kind: Protected})
	require.NoError(t, err)
	_, err = a.Add(Segment{ID: "x", Kind: Protected})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestArena_ContentAndLen(t *testing.T) {
	a, root, p, _ := build(t)
	assert.Equal(t, "$X$ = $X$$Y$ body", a.Content(root))
	assert.Equal(t, len(a.Content(root)), a.Len(root))

	a.Write(p, "value")
	assert.Equal(t, "value = value$Y$ body", a.Content(root))
	assert.Equal(t, 4, a.Size())
}

func TestArena_WriteIntegrity(t *testing.T) {
	a, _, _, u := build(t)

	assert.Equal(t, Written, a.Write(u, "generated"))
	assert.Equal(t, Hash("generated"), a.Get(u).Hash)

	// Hand edit: text changes, hash stays.
	a.Get(u).Text = "edited"
	assert.Equal(t, Conflict, a.Write(u, "regenerated"))
	assert.Equal(t, "edited", a.Get(u).Text)
	assert.Equal(t, Hash("generated"), a.Get(u).Hash)
}

func TestArena_WriteWithoutIntegrity(t *testing.T) {
	a := NewArena()
	h, err := a.Add(Segment{ID: "anon", Kind: Unprotected, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, Written, a.Write(h, "y"))
	assert.Equal(t, Written, a.Write(h, "z"))
	assert.Empty(t, a.Get(h).Hash)
}

func TestArena_WriteComposite(t *testing.T) {
	a, root, _, _ := build(t)
	assert.Equal(t, NotContent, a.Write(root, "x"))
}

func TestArena_ReplaceKeepsID(t *testing.T) {
	a, root, p, _ := build(t)
	a.Replace(p, Segment{ID: "ignored", Kind: Appendable})
	assert.Equal(t, "f:$X$", a.Get(p).ID)
	assert.Equal(t, Appendable, a.Get(p).Kind)
	assert.Equal(t, " = $Y$ body", a.Content(root))
}

func TestArena_AppendArrange(t *testing.T) {
	a := NewArena()
	slot, err := a.Add(Segment{ID: "slot", Kind: Appendable, Prior: []string{"b", "a"}})
	require.NoError(t, err)
	ha, _ := a.Add(Segment{ID: "a", Kind: Protected, Text: "A"})
	hb, _ := a.Add(Segment{ID: "b", Kind: Protected, Text: "B"})

	keepPrior := func(prior, appended []string) []string {
		if len(appended) == len(prior) {
			return prior
		}
		return appended
	}
	require.NoError(t, a.Append(slot, ha, keepPrior))
	assert.Equal(t, "A", a.Content(slot))
	require.NoError(t, a.Append(slot, hb, keepPrior))
	assert.Equal(t, "BA", a.Content(slot))

	assert.True(t, a.Appended(slot, "a"))
	assert.False(t, a.Appended(slot, "c"))
}

func TestArena_AppendNotAppendable(t *testing.T) {
	a, root, p, _ := build(t)
	assert.Error(t, a.Append(root, p, nil))
}

func TestArena_WalkVisitsRepeats(t *testing.T) {
	a, root, _, _ := build(t)
	var ids []string
	a.Walk(root, func(_ Handle, s *Segment) bool {
		ids = append(ids, s.ID)
		return true
	})
	assert.Equal(t, []string{"f", "f:$X$", "f:$X$before[1]", "f:$X$", "f:$Y$"}, ids)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Protected, Unprotected, Composite, Appendable} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("bogus")
	assert.Error(t, err)
}
