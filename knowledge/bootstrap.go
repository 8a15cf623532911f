package knowledge

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
)

// ErrDimension is returned when an embedder produces vectors of an
// unexpected length.
var ErrDimension = errors.New("knowledge: embedding dimension mismatch")

//go:embed data/tmep_sections.json
var builtinSections []byte

//go:embed data/sections.schema.json
var sectionsSchema []byte

// Section is a knowledge section before it has been embedded.
type Section struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Category    string            `json:"category"`
	Text        string            `json:"text"`
	Parent      string            `json:"parent,omitempty"`
	Subsections map[string]string `json:"subsections,omitempty"`
}

// EmbedText is the text sent to the embedder for a section.
func (s Section) EmbedText() string {
	return s.Title + "\n\n" + s.Text
}

// ContentHash identifies the embedded content of a section.
func (s Section) ContentHash() string {
	sum := sha256.Sum256([]byte(s.EmbedText()))
	return hex.EncodeToString(sum[:])
}

type sectionsDoc struct {
	Source   string    `json:"source"`
	Sections []Section `json:"sections"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		schema, schemaErr = compiler.Compile(sectionsSchema)
	})
	return schema, schemaErr
}

// ParseSections validates a bootstrap document against the section schema
// and decodes it.
func ParseSections(data []byte) ([]Section, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile section schema: %w", err)
	}
	result := sch.ValidateJSON(data)
	if !result.IsValid() {
		return nil, fmt.Errorf("%w: schema validation failed: %v", ErrLoad, result.Errors)
	}

	var doc sectionsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding sections: %v", ErrLoad, err)
	}
	return doc.Sections, nil
}

// ReadSections reads and parses a bootstrap document from disk.
func ReadSections(path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sections: %w", err)
	}
	return ParseSections(data)
}

// BuiltinSections returns the TMEP sections shipped with the module.
func BuiltinSections() []Section {
	sections, err := ParseSections(builtinSections)
	if err != nil {
		panic(fmt.Sprintf("knowledge: builtin sections are invalid: %v", err))
	}
	return sections
}

// Embedder produces embeddings for a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache persists section embeddings between runs.
type Cache interface {
	CachedEmbedding(ctx context.Context, sectionID, model, contentHash string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, sectionID, model, contentHash string, vec []float32) error
}

// BuildOptions controls how sections are embedded.
type BuildOptions struct {
	Model     string // embedding model name, part of the cache key
	Dim       int    // expected dimension; 0 accepts whatever the embedder returns
	BatchSize int
}

// Build embeds sections (consulting cache first when non-nil) and loads
// the result into a Store.
func Build(ctx context.Context, sections []Section, embedder Embedder, cache Cache, opts BuildOptions) (*Store, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	start := time.Now()

	entries := make([]Entry, len(sections))
	var pending []int
	cached := 0
	for i, sec := range sections {
		entries[i] = Entry{ID: sec.ID, Title: sec.Title, Category: sec.Category, Text: sec.Text}
		if cache == nil {
			pending = append(pending, i)
			continue
		}
		vec, ok, err := cache.CachedEmbedding(ctx, sec.ID, opts.Model, sec.ContentHash())
		if err != nil {
			slog.Warn("knowledge: embedding cache lookup failed", "section", sec.ID, "error", err)
		}
		if ok && (opts.Dim == 0 || len(vec) == opts.Dim) {
			entries[i].Embedding = vec
			cached++
			continue
		}
		pending = append(pending, i)
	}

	for lo := 0; lo < len(pending); lo += opts.BatchSize {
		hi := min(lo+opts.BatchSize, len(pending))
		batch := pending[lo:hi]

		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = sections[idx].EmbedText()
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding sections: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding sections: got %d vectors for %d texts", len(vecs), len(batch))
		}

		for j, idx := range batch {
			sec := sections[idx]
			if opts.Dim > 0 && len(vecs[j]) != opts.Dim {
				return nil, fmt.Errorf("%w: section %s has %d dimensions, want %d",
					ErrDimension, sec.ID, len(vecs[j]), opts.Dim)
			}
			entries[idx].Embedding = vecs[j]
			if cache != nil {
				if err := cache.PutEmbedding(ctx, sec.ID, opts.Model, sec.ContentHash(), vecs[j]); err != nil {
					slog.Warn("knowledge: caching embedding failed", "section", sec.ID, "error", err)
				}
			}
		}
	}

	store, err := Load(entries)
	if err != nil {
		return nil, err
	}

	slog.Info("knowledge: store built",
		"sections", store.Len(),
		"cached", cached,
		"embedded", len(pending),
		"dim", store.Dim(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return store, nil
}
