// Package retrieval finds the knowledge entries nearest to a query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brunobiangulo/tmrisk/knowledge"
)

// DefaultK is the number of entries returned when the caller asks for k <= 0.
const DefaultK = 3

var (
	// ErrEmptyStore is returned when retrieving from a store with no entries.
	ErrEmptyStore = errors.New("retrieval: knowledge store is empty")

	// ErrDimensionMismatch is returned when the query embedding does not
	// match the store's embedding dimension.
	ErrDimensionMismatch = errors.New("retrieval: query embedding dimension mismatch")
)

// Embedder turns texts into vectors. llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one retrieved entry.
type Hit struct {
	EntryID   string  `json:"entry_id"`
	Relevance float64 `json:"relevance"`
	Distance  float64 `json:"distance"`
}

// Result holds retrieved hits, nearest first.
type Result struct {
	Hits []Hit `json:"hits"`
}

// MaxRelevance returns the highest relevance in the result, or 0 if empty.
func (r Result) MaxRelevance() float64 {
	best := 0.0
	for _, h := range r.Hits {
		if h.Relevance > best {
			best = h.Relevance
		}
	}
	return best
}

// IDs returns the ids of the hits in order.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.EntryID
	}
	return ids
}

// Engine performs exact nearest-neighbour search over a knowledge store.
type Engine struct {
	store    *knowledge.Store
	embedder Embedder
}

// New creates a retrieval engine.
func New(store *knowledge.Store, embedder Embedder) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Retrieve embeds query and returns up to k entries ordered by increasing
// squared Euclidean distance. Ties keep insertion order.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) (Result, error) {
	if k <= 0 {
		k = DefaultK
	}
	if e.store == nil || e.store.Len() == 0 {
		return Result{}, ErrEmptyStore
	}

	start := time.Now()
	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return Result{}, fmt.Errorf("embedding query: got %d vectors, want 1", len(vecs))
	}

	hits, err := e.Nearest(vecs[0], k)
	if err != nil {
		return Result{}, err
	}

	slog.Debug("retrieval: search complete",
		"k", k,
		"hits", len(hits),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return Result{Hits: hits}, nil
}

// Nearest ranks every stored entry against an already embedded query.
func (e *Engine) Nearest(q []float32, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultK
	}
	n := e.store.Len()
	if n == 0 {
		return nil, ErrEmptyStore
	}
	if len(q) != e.store.Dim() {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d",
			ErrDimensionMismatch, len(q), e.store.Dim())
	}

	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		entry := e.store.At(i)
		d := squaredDistance(q, entry.Embedding)
		hits[i] = Hit{EntryID: entry.ID, Distance: d, Relevance: 1 / (1 + d)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Distance < hits[b].Distance
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
