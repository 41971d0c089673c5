// Package embeddings owns the mapping from paper ID to its fixed-dimension
// embedding vector.
//
// Vectors are msgpack-encoded in Badger under the "emb:" prefix and pulled
// into memory by an explicit Load phase at process start. After Load the
// store is immutable and reads are lock-free map lookups; there is no lazy
// population racing under concurrency.
//
// Dimensionality is a corpus-wide invariant: every vector in one generation
// must share it, and a mismatch is a fatal load error, never a per-query one.
package embeddings

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

const keyPrefix = "emb:"

var (
	// ErrDimensionMismatch is returned by Load when the corpus contains
	// vectors of differing dimensionality.
	ErrDimensionMismatch = errors.New("embeddings: dimension mismatch")

	// ErrEmptyVector is returned by Put for nil or zero-length vectors.
	ErrEmptyVector = errors.New("embeddings: empty vector")
)

// record is the stored form of one embedding.
type record struct {
	Dim    int       `msgpack:"dim"`
	Values []float32 `msgpack:"values"`
}

// Store holds the corpus embeddings. Construct with NewStore, then call Load
// exactly once before reading.
type Store struct {
	db  *badger.DB
	log zerolog.Logger

	mu      sync.RWMutex
	vectors map[string][]float32
	dims    int
	loaded  bool
}

// NewStore creates a store over db.
func NewStore(db *badger.DB, log zerolog.Logger) *Store {
	return &Store{
		db:      db,
		log:     log.With().Str("component", "embeddings").Logger(),
		vectors: make(map[string][]float32),
	}
}

// Put writes one embedding record. Intended for ingestion; the in-memory map
// is updated as well so a freshly ingested corpus is readable without a
// second Load.
//
// Dimensionality is checked before anything touches disk: a rejected vector
// leaves no record behind, so one bad ingest row cannot make the next Load
// fatal. The lock is held across the write to keep the check and the commit
// atomic against concurrent Puts.
func (s *Store) Put(id string, vec []float32) error {
	if id == "" {
		return errors.New("embeddings: id must not be empty")
	}
	if len(vec) == 0 {
		return ErrEmptyVector
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims != 0 && s.dims != len(vec) {
		return fmt.Errorf("%w: %s has %d dims, corpus has %d",
			ErrDimensionMismatch, id, len(vec), s.dims)
	}

	rec := record{Dim: len(vec), Values: vec}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("embeddings: encode %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id), data)
	})
	if err != nil {
		return fmt.Errorf("embeddings: store %s: %w", id, err)
	}

	cp := make([]float32, len(vec))
	copy(cp, vec)

	if s.dims == 0 {
		s.dims = len(vec)
	}
	s.vectors[id] = cp
	return nil
}

// Load reads every embedding record into memory and validates uniform
// dimensionality. A record that fails to decode is logged and skipped; a
// dimension mismatch aborts the whole load.
func (s *Store) Load(ctx context.Context) error {
	loaded := make(map[string][]float32)
	dims := 0

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

			var rec record
			err := item.Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil || len(rec.Values) == 0 {
				s.log.Warn().Err(err).Str("paper_id", id).Msg("skipping unreadable embedding record")
				continue
			}
			if dims == 0 {
				dims = len(rec.Values)
			} else if len(rec.Values) != dims {
				return fmt.Errorf("%w: %s has %d dims, corpus has %d",
					ErrDimensionMismatch, id, len(rec.Values), dims)
			}
			loaded[id] = rec.Values
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("embeddings: load: %w", err)
	}

	s.mu.Lock()
	s.vectors = loaded
	s.dims = dims
	s.loaded = true
	s.mu.Unlock()

	s.log.Info().Int("embeddings", len(loaded)).Int("dimensions", dims).Msg("embeddings loaded")
	return nil
}

// Get returns the vector for id. The returned slice is shared and must not
// be mutated by callers.
func (s *Store) Get(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.vectors[id]
	return vec, ok
}

// GetAll returns the vectors for the given ids, omitting ids with no stored
// embedding rather than failing the batch. With no ids it returns the whole
// corpus.
func (s *Store) GetAll(ids ...string) map[string][]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		out := make(map[string][]float32, len(s.vectors))
		for id, vec := range s.vectors {
			out[id] = vec
		}
		return out
	}

	out := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if vec, ok := s.vectors[id]; ok {
			out[id] = vec
		}
	}
	return out
}

// IDs returns every stored paper ID in ascending order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Dimensions returns the corpus dimensionality (0 before any data).
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Count returns the number of stored embeddings.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}
