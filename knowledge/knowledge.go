// Package knowledge holds the catalog of authoritative TMEP sections the
// engine is allowed to reason from and cite.
package knowledge

import (
	"errors"
	"fmt"
)

// ErrLoad is returned when a set of entries cannot be loaded as a store.
var ErrLoad = errors.New("knowledge: load failed")

// Entry is one authoritative section together with its embedding.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// LoadError describes the entry that made a load fail.
type LoadError struct {
	Index  int
	ID     string
	Reason string
}

func (e *LoadError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("knowledge: entry %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("knowledge: entry %d (%s): %s", e.Index, e.ID, e.Reason)
}

func (e *LoadError) Unwrap() error { return ErrLoad }

// Store is an immutable catalog of entries. It is built once by Load and
// only read afterwards, so it can be shared between goroutines freely.
type Store struct {
	entries []Entry
	index   map[string]int
	dim     int
}

// Load validates entries and builds the catalog, the citation validity
// index and the embedding matrix. Any invalid entry rejects the whole load.
func Load(entries []Entry) (*Store, error) {
	s := &Store{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.ID == "" {
			return nil, &LoadError{Index: i, Reason: "missing id"}
		}
		if len(e.Embedding) == 0 {
			return nil, &LoadError{Index: i, ID: e.ID, Reason: "missing embedding"}
		}
		if _, dup := s.index[e.ID]; dup {
			return nil, &LoadError{Index: i, ID: e.ID, Reason: "duplicate id"}
		}
		if s.dim == 0 {
			s.dim = len(e.Embedding)
		} else if len(e.Embedding) != s.dim {
			return nil, &LoadError{
				Index:  i,
				ID:     e.ID,
				Reason: fmt.Sprintf("embedding has %d dimensions, want %d", len(e.Embedding), s.dim),
			}
		}

		emb := make([]float32, len(e.Embedding))
		copy(emb, e.Embedding)
		e.Embedding = emb

		s.index[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return s, nil
}

// Lookup returns the entry with the given id.
func (s *Store) Lookup(id string) (Entry, bool) {
	i, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// IsValid reports whether id names an entry in the store.
func (s *Store) IsValid(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.entries) }

// Dim returns the embedding dimension, or 0 for an empty store.
func (s *Store) Dim() int { return s.dim }

// At returns the entry at position i in insertion order.
func (s *Store) At(i int) Entry { return s.entries[i] }

// Entries returns a copy of all entries in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// IDs returns the validity index as a list in insertion order.
func (s *Store) IDs() []string {
	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ID
	}
	return ids
}

// Category returns the category ("substantive" or "procedural") of id.
func (s *Store) Category(id string) (string, bool) {
	e, ok := s.Lookup(id)
	return e.Category, ok
}
