// Package similarity computes cosine similarity rankings and matrices over
// the embedding store.
//
// The index is brute force and exact: TopK is O(n·D) over the corpus and
// PairwiseMatrix is O(n²·D) over its input; callers are responsible for
// bounding n before asking for a matrix (see the graph builder's sampling).
// Vectors are normalized once per call so each pair costs a single dot
// product.
package similarity

import (
	"context"
	"sort"

	"github.com/orneryd/papergraph/pkg/math/vector"
)

// VectorSource supplies embedding vectors by ID.
type VectorSource interface {
	Get(id string) ([]float32, bool)
	GetAll(ids ...string) map[string][]float32
	IDs() []string
}

// Match is one similarity result.
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index computes cosine similarities over a VectorSource.
type Index struct {
	source VectorSource
}

// NewIndex creates an index over source.
func NewIndex(source VectorSource) *Index {
	return &Index{source: source}
}

// TopK returns up to k papers most similar to targetID, descending by score
// with ties broken by ascending ID, all scoring at least minScore. The
// target itself is excluded. An unknown target yields an empty result, not
// an error; the caller decides whether that is a NotFound condition.
func (idx *Index) TopK(ctx context.Context, targetID string, k int, minScore float64) ([]Match, error) {
	target, ok := idx.source.Get(targetID)
	if !ok || k <= 0 {
		return []Match{}, nil
	}

	normTarget := vector.Normalize(target)

	var matches []Match
	for id, vec := range idx.source.GetAll() {
		if id == targetID {
			continue
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		score := vector.DotProduct(normTarget, vector.Normalize(vec))
		if score >= minScore {
			matches = append(matches, Match{ID: id, Score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}

// PairwiseMatrix returns the symmetric cosine similarity matrix over ids, in
// input order. The diagonal is set to 1.0 but is never consumed by callers.
// An id with no stored embedding behaves as a zero vector: similarity 0
// against everything.
func (idx *Index) PairwiseMatrix(ctx context.Context, ids []string) ([][]float64, error) {
	n := len(ids)
	vecs := idx.source.GetAll(ids...)

	// Normalize once so each pair is a dot product.
	normalized := make([][]float32, n)
	for i, id := range ids {
		if vec, ok := vecs[id]; ok {
			normalized[i] = vector.Normalize(vec)
		}
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		for j := i + 1; j < n; j++ {
			var score float64
			if normalized[i] != nil && normalized[j] != nil {
				score = vector.DotProduct(normalized[i], normalized[j])
			}
			matrix[i][j] = score
			matrix[j][i] = score
		}
	}
	return matrix, nil
}

// Similarity returns the cosine similarity between two stored papers.
// Either id missing yields 0.
func (idx *Index) Similarity(a, b string) float64 {
	va, okA := idx.source.Get(a)
	vb, okB := idx.source.Get(b)
	if !okA || !okB {
		return 0
	}
	return vector.CosineSimilarity(va, vb)
}
