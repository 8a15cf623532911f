// Package store persists knowledge-section embeddings in SQLite with
// sqlite-vec so the knowledge store can be rebuilt without re-embedding.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps the SQLite embedding cache.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", embeddingDim)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// CachedEmbedding returns the stored embedding for a section version.
// The bool is false when no embedding is cached for that exact key.
func (s *Store) CachedEmbedding(ctx context.Context, sectionID, model, contentHash string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT v.embedding
		FROM sections s
		JOIN vec_sections v ON v.section_rowid = s.id
		WHERE s.section_id = ? AND s.model = ? AND s.content_hash = ?
	`, sectionID, model, contentHash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	vec, err := deserializeFloat32(blob)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// PutEmbedding stores the embedding for a section version and removes
// embeddings of older versions of the same section and model.
func (s *Store) PutEmbedding(ctx context.Context, sectionID, model, contentHash string, vec []float32) error {
	if len(vec) != s.embeddingDim {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(vec), s.embeddingDim)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_sections WHERE section_rowid IN (
				SELECT id FROM sections WHERE section_id = ? AND model = ? AND content_hash != ?
			)`, sectionID, model, contentHash); err != nil {
			return fmt.Errorf("pruning stale embeddings: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM sections WHERE section_id = ? AND model = ? AND content_hash != ?",
			sectionID, model, contentHash); err != nil {
			return fmt.Errorf("pruning stale sections: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO sections (section_id, model, content_hash) VALUES (?, ?, ?)",
			sectionID, model, contentHash); err != nil {
			return fmt.Errorf("inserting section: %w", err)
		}

		var rowID int64
		if err := tx.QueryRowContext(ctx,
			"SELECT id FROM sections WHERE section_id = ? AND model = ? AND content_hash = ?",
			sectionID, model, contentHash).Scan(&rowID); err != nil {
			return fmt.Errorf("reading section id: %w", err)
		}

		// vec0 has no upsert.
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_sections WHERE section_rowid = ?", rowID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO vec_sections (section_rowid, embedding) VALUES (?, ?)",
			rowID, serializeFloat32(vec))
		return err
	})
}

// DBStats holds row counts for the cache tables.
type DBStats struct {
	Sections   int `json:"sections"`
	Embeddings int `json:"embeddings"`
}

// DBStats returns counts of cached sections and embeddings.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM sections", &stats.Sections},
		{"SELECT COUNT(*) FROM vec_sections", &stats.Embeddings},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
