package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	store, err := Load([]Entry{
		{ID: "1207", Title: "Likelihood of Confusion", Embedding: []float32{1, 0}},
		{ID: "1209", Title: "Merely Descriptive Refusal", Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 2, store.Dim())
	assert.True(t, store.IsValid("1207"))
	assert.False(t, store.IsValid("9999"))
	assert.Equal(t, []string{"1207", "1209"}, store.IDs())

	e, ok := store.Lookup("1209")
	require.True(t, ok)
	assert.Equal(t, "Merely Descriptive Refusal", e.Title)
}

func TestLoadRejectsWholeSet(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		wantIdx int
	}{
		{
			name:    "missing id",
			entries: []Entry{{ID: "1207", Embedding: []float32{1}}, {Embedding: []float32{1}}},
			wantIdx: 1,
		},
		{
			name:    "missing embedding",
			entries: []Entry{{ID: "1207"}},
			wantIdx: 0,
		},
		{
			name: "duplicate id",
			entries: []Entry{
				{ID: "1207", Embedding: []float32{1}},
				{ID: "1209", Embedding: []float32{2}},
				{ID: "1207", Embedding: []float32{3}},
			},
			wantIdx: 2,
		},
		{
			name: "inconsistent dimensions",
			entries: []Entry{
				{ID: "1207", Embedding: []float32{1, 2}},
				{ID: "1209", Embedding: []float32{1, 2, 3}},
			},
			wantIdx: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Load(tt.entries)
			require.Error(t, err)
			assert.Nil(t, store)
			assert.ErrorIs(t, err, ErrLoad)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, tt.wantIdx, le.Index)
		})
	}
}

func TestLoadCopiesEmbeddings(t *testing.T) {
	vec := []float32{1, 2}
	store, err := Load([]Entry{{ID: "904", Embedding: vec}})
	require.NoError(t, err)

	vec[0] = 99
	e, _ := store.Lookup("904")
	assert.Equal(t, float32(1), e.Embedding[0])
}

func TestBuiltinSections(t *testing.T) {
	sections := BuiltinSections()
	require.Len(t, sections, 11)

	ids := make(map[string]Section)
	for _, s := range sections {
		ids[s.ID] = s
	}
	for _, id := range []string{"1207", "1207.01", "1209", "904", "1301", "1402", "807", "1401", "1202", "1208", "1213"} {
		assert.Contains(t, ids, id)
	}
	assert.Equal(t, "1207", ids["1207.01"].Parent)
	assert.Equal(t, "procedural", ids["904"].Category)
}

func TestParseSectionsSchema(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing sections", `{"source":"x"}`},
		{"bad category", `{"sections":[{"id":"1","title":"t","category":"other","text":"x"}]}`},
		{"bad id", `{"sections":[{"id":"TMEP 1","title":"t","category":"substantive","text":"x"}]}`},
		{"empty text", `{"sections":[{"id":"1","title":"t","category":"substantive","text":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSections([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrLoad)
		})
	}
}

type countingEmbedder struct {
	calls int
	texts int
	dim   int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

type mapCache struct {
	vecs map[string][]float32
	puts int
}

func (c *mapCache) key(id, model, hash string) string { return id + "|" + model + "|" + hash }

func (c *mapCache) CachedEmbedding(_ context.Context, id, model, hash string) ([]float32, bool, error) {
	v, ok := c.vecs[c.key(id, model, hash)]
	return v, ok, nil
}

func (c *mapCache) PutEmbedding(_ context.Context, id, model, hash string, vec []float32) error {
	c.vecs[c.key(id, model, hash)] = vec
	c.puts++
	return nil
}

func TestBuildUsesCache(t *testing.T) {
	sections := BuiltinSections()
	cache := &mapCache{vecs: map[string][]float32{}}
	opts := BuildOptions{Model: "test", Dim: 3, BatchSize: 4}

	first := &countingEmbedder{dim: 3}
	store, err := Build(context.Background(), sections, first, cache, opts)
	require.NoError(t, err)
	assert.Equal(t, len(sections), store.Len())
	assert.Equal(t, len(sections), first.texts)
	assert.Equal(t, 3, first.calls)
	assert.Equal(t, len(sections), cache.puts)

	second := &countingEmbedder{dim: 3}
	store, err = Build(context.Background(), sections, second, cache, opts)
	require.NoError(t, err)
	assert.Equal(t, len(sections), store.Len())
	assert.Zero(t, second.calls)
}

func TestBuildDimensionMismatch(t *testing.T) {
	_, err := Build(context.Background(), BuiltinSections(), &countingEmbedder{dim: 5}, nil, BuildOptions{Dim: 3})
	assert.ErrorIs(t, err, ErrDimension)
}
