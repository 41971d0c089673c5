// Package papers stores paper display metadata and serves the text-search
// and statistics surfaces.
//
// Records are msgpack-encoded in Badger under the "paper:" prefix. The store
// is loaded once at startup into an in-memory map; after Load, reads never
// touch Badger. Metadata is passthrough for the engine: papergraph only
// requires the opaque ID, everything else exists for presentation.
package papers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "paper:"

// ErrNotFound is returned when a paper ID has no stored metadata.
var ErrNotFound = errors.New("papers: not found")

// Author identifies a paper author.
type Author struct {
	Name        string `msgpack:"name" json:"name"`
	Affiliation string `msgpack:"affiliation,omitempty" json:"affiliation,omitempty"`
	Email       string `msgpack:"email,omitempty" json:"email,omitempty"`
}

// ExternalLink points at supplementary material (code, project page, DOI).
type ExternalLink struct {
	Type        string `msgpack:"type" json:"type"`
	URL         string `msgpack:"url" json:"url"`
	Description string `msgpack:"description,omitempty" json:"description,omitempty"`
}

// Paper is the display metadata attached to one document ID.
type Paper struct {
	ID              string         `msgpack:"id" json:"id"`
	Title           string         `msgpack:"title" json:"title"`
	Abstract        string         `msgpack:"abstract" json:"abstract"`
	Authors         []Author       `msgpack:"authors" json:"authors"`
	SubjectAreas    []string       `msgpack:"subject_areas" json:"subject_areas"`
	ExternalLinks   []ExternalLink `msgpack:"external_links,omitempty" json:"external_links,omitempty"`
	PublicationDate string         `msgpack:"publication_date,omitempty" json:"publication_date,omitempty"`
}

// AuthorNames returns the author display names in order.
func (p *Paper) AuthorNames() []string {
	names := make([]string, len(p.Authors))
	for i, a := range p.Authors {
		names[i] = a.Name
	}
	return names
}

// HasAnySubjectArea reports whether the paper's subject areas intersect areas.
func (p *Paper) HasAnySubjectArea(areas []string) bool {
	for _, want := range areas {
		for _, have := range p.SubjectAreas {
			if have == want {
				return true
			}
		}
	}
	return false
}

// clone returns a deep copy. The slice fields are duplicated so the cache
// and callers never share mutable state; mutating a returned paper cannot
// corrupt a cached one.
func (p *Paper) clone() *Paper {
	cp := *p
	if p.Authors != nil {
		cp.Authors = append([]Author(nil), p.Authors...)
	}
	if p.SubjectAreas != nil {
		cp.SubjectAreas = append([]string(nil), p.SubjectAreas...)
	}
	if p.ExternalLinks != nil {
		cp.ExternalLinks = append([]ExternalLink(nil), p.ExternalLinks...)
	}
	return &cp
}

// Store is a Badger-backed paper metadata store with an in-memory read path.
type Store struct {
	db  *badger.DB
	log zerolog.Logger

	mu     sync.RWMutex
	papers map[string]*Paper
}

// NewStore creates a store over db. Call Load before reading.
func NewStore(db *badger.DB, log zerolog.Logger) *Store {
	return &Store{
		db:     db,
		log:    log.With().Str("component", "papers").Logger(),
		papers: make(map[string]*Paper),
	}
}

// Load reads every paper record into memory. A record that fails to decode is
// logged and skipped; it must not abort the load.
func (s *Store) Load(ctx context.Context) error {
	loaded := make(map[string]*Paper)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), keyPrefix)
			err := item.Value(func(val []byte) error {
				var p Paper
				if err := msgpack.Unmarshal(val, &p); err != nil {
					return err
				}
				loaded[id] = &p
				return nil
			})
			if err != nil {
				s.log.Warn().Err(err).Str("paper_id", id).Msg("skipping undecodable paper record")
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("papers: load: %w", err)
	}

	s.mu.Lock()
	s.papers = loaded
	s.mu.Unlock()

	s.log.Info().Int("papers", len(loaded)).Msg("paper metadata loaded")
	return nil
}

// Put writes a paper record and updates the in-memory map.
func (s *Store) Put(p *Paper) error {
	if p == nil || p.ID == "" {
		return errors.New("papers: paper must have an id")
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("papers: encode %s: %w", p.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+p.ID), data)
	})
	if err != nil {
		return fmt.Errorf("papers: store %s: %w", p.ID, err)
	}

	s.mu.Lock()
	s.papers[p.ID] = p.clone()
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the paper for id, or ErrNotFound.
// Copies keep callers from mutating cached state.
func (s *Store) Get(id string) (*Paper, error) {
	s.mu.RLock()
	p, ok := s.papers[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.clone(), nil
}

// Has reports whether metadata exists for id.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.papers[id]
	return ok
}

// All returns every paper sorted by ID.
func (s *Store) All() []*Paper {
	s.mu.RLock()
	out := make([]*Paper, 0, len(s.papers))
	for _, p := range s.papers {
		out = append(out, p.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of stored papers.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.papers)
}

// Search does case-insensitive substring matching over title, abstract,
// author names, and subject areas, returning up to limit papers in ID order.
func (s *Store) Search(query string, limit int) []*Paper {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}

	matches := make([]*Paper, 0, limit)
	for _, p := range s.All() {
		if len(matches) >= limit {
			break
		}
		if paperMatches(p, q) {
			matches = append(matches, p)
		}
	}
	return matches
}

func paperMatches(p *Paper, q string) bool {
	if strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Abstract), q) {
		return true
	}
	for _, a := range p.Authors {
		if strings.Contains(strings.ToLower(a.Name), q) {
			return true
		}
	}
	for _, area := range p.SubjectAreas {
		if strings.Contains(strings.ToLower(area), q) {
			return true
		}
	}
	return false
}

// SubjectAreaCounts returns a histogram of subject areas across the corpus.
func (s *Store) SubjectAreaCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, p := range s.papers {
		for _, area := range p.SubjectAreas {
			counts[area]++
		}
	}
	return counts
}

// AuthorCount returns the number of distinct author names across the corpus.
func (s *Store) AuthorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range s.papers {
		for _, a := range p.Authors {
			seen[a.Name] = struct{}{}
		}
	}
	return len(seen)
}
