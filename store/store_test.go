//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestNewRejectsZeroDim(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "test.db"), 0); err == nil {
		t.Fatal("expected error for zero embedding dimension")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}

	var idx int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_sections_lookup'").Scan(&idx); err != nil {
		t.Fatalf("reading indexes: %v", err)
	}
	if idx != 1 {
		t.Errorf("idx_sections_lookup count = %d, want 1", idx)
	}
}

// ---------------------------------------------------------------------------
// Embedding cache
// ---------------------------------------------------------------------------

func TestPutAndGetEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	vec := []float32{0.1, 0.2, 0.3, 0.4}

	if err := s.PutEmbedding(ctx, "1207", "test-model", "hash-a", vec); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}

	got, ok, err := s.CachedEmbedding(ctx, "1207", "test-model", "hash-a")
	if err != nil {
		t.Fatalf("CachedEmbedding: %v", err)
	}
	if !ok {
		t.Fatal("expected cached embedding")
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("embedding[%d] = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestCachedEmbeddingMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.PutEmbedding(ctx, "1207", "model-a", "hash-a", []float32{1, 2, 3, 4}); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}

	tests := []struct {
		name, section, model, hash string
	}{
		{"unknown section", "1209", "model-a", "hash-a"},
		{"other model", "1207", "model-b", "hash-a"},
		{"changed content", "1207", "model-a", "hash-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := s.CachedEmbedding(ctx, tt.section, tt.model, tt.hash)
			if err != nil {
				t.Fatalf("CachedEmbedding: %v", err)
			}
			if ok {
				t.Error("expected cache miss")
			}
		})
	}
}

func TestPutEmbeddingReplacesStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutEmbedding(ctx, "904", "m", "old", []float32{1, 1, 1, 1}); err != nil {
		t.Fatalf("PutEmbedding old: %v", err)
	}
	if err := s.PutEmbedding(ctx, "904", "m", "new", []float32{2, 2, 2, 2}); err != nil {
		t.Fatalf("PutEmbedding new: %v", err)
	}
	// Same key twice must not duplicate rows.
	if err := s.PutEmbedding(ctx, "904", "m", "new", []float32{3, 3, 3, 3}); err != nil {
		t.Fatalf("PutEmbedding again: %v", err)
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if stats.Sections != 1 || stats.Embeddings != 1 {
		t.Errorf("stats = %+v, want 1 section and 1 embedding", stats)
	}

	got, ok, err := s.CachedEmbedding(ctx, "904", "m", "new")
	if err != nil || !ok {
		t.Fatalf("CachedEmbedding: ok=%v err=%v", ok, err)
	}
	if got[0] != 3 {
		t.Errorf("embedding[0] = %v, want 3", got[0])
	}
}

func TestPutEmbeddingWrongDim(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutEmbedding(context.Background(), "904", "m", "h", []float32{1, 2}); err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	in := []float32{-1.5, 0, 3.25}
	out, err := deserializeFloat32(serializeFloat32(in))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("value %d = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := deserializeFloat32([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
