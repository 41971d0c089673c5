// Package graph assembles thresholded similarity graphs with a bounded edge
// budget.
//
// Pipeline per build: category filter → seeded sampling → pairwise cosine
// matrix → strict threshold → global descending sort → edge cap. The cap
// applies to the whole graph, not per node; a node can lose every edge to
// higher-scoring pairs elsewhere and is still returned as an isolated node.
package graph

import (
	"context"
	"math/rand"
	"sort"

	"github.com/orneryd/papergraph/pkg/papers"
)

// Node is one paper in the graph. Coordinates and cluster are optional
// annotations added by the projection and cluster engines.
type Node struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	SubjectAreas []string `json:"subject_areas,omitempty"`
	X            *float64 `json:"x,omitempty"`
	Y            *float64 `json:"y,omitempty"`
	Cluster      *int     `json:"cluster,omitempty"`
}

// Edge is one undirected similarity edge in canonical form: Source < Target
// lexicographically, never Source == Target.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Score  float64 `json:"score"`
}

// Options controls one build.
type Options struct {
	// Threshold keeps only pairs with score strictly greater.
	Threshold float64
	// MaxEdges caps the whole graph after the global sort.
	MaxEdges int
	// SampleSize, when positive and below the candidate count, selects a
	// seeded uniform sample without replacement. Best-effort performance
	// control, not a correctness requirement.
	SampleSize int
	// Categories, when non-empty, restricts candidates to papers whose
	// subject areas intersect it, before any similarity computation.
	Categories []string
	// Seed drives the sampling RNG.
	Seed int64
}

// Graph is the build output.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// MatrixSource computes pairwise cosine similarity matrices.
type MatrixSource interface {
	PairwiseMatrix(ctx context.Context, ids []string) ([][]float64, error)
}

// MetadataSource supplies display metadata for node passthrough.
type MetadataSource interface {
	Get(id string) (*papers.Paper, error)
}

// Builder assembles similarity graphs.
type Builder struct {
	matrix MatrixSource
	meta   MetadataSource
}

// NewBuilder creates a builder over the given similarity and metadata
// sources.
func NewBuilder(matrix MatrixSource, meta MetadataSource) *Builder {
	return &Builder{matrix: matrix, meta: meta}
}

// Build assembles the graph over candidates. Fewer than two surviving
// candidates yield nodes with an empty edge list, not an error.
func (b *Builder) Build(ctx context.Context, candidates []string, opts Options) (*Graph, error) {
	ids := b.filterByCategory(candidates, opts.Categories)
	ids = sampleIDs(ids, opts.SampleSize, opts.Seed)

	nodes := make([]Node, len(ids))
	for i, id := range ids {
		nodes[i] = b.nodeFor(id)
	}

	if len(ids) < 2 {
		return &Graph{Nodes: nodes, Edges: []Edge{}}, nil
	}

	matrix, err := b.matrix.PairwiseMatrix(ctx, ids)
	if err != nil {
		return nil, err
	}

	var edges []Edge
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			score := matrix[i][j]
			if score > opts.Threshold {
				source, target := ids[i], ids[j]
				if target < source {
					source, target = target, source
				}
				edges = append(edges, Edge{Source: source, Target: target, Score: score})
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Score != edges[j].Score {
			return edges[i].Score > edges[j].Score
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	if opts.MaxEdges > 0 && len(edges) > opts.MaxEdges {
		edges = edges[:opts.MaxEdges]
	}
	if edges == nil {
		edges = []Edge{}
	}

	return &Graph{Nodes: nodes, Edges: edges}, nil
}

// nodeFor builds a node with metadata passthrough. A paper with no stored
// metadata keeps its bare ID; it is not dropped from the graph.
func (b *Builder) nodeFor(id string) Node {
	node := Node{ID: id}
	if b.meta == nil {
		return node
	}
	if p, err := b.meta.Get(id); err == nil {
		node.Title = p.Title
		node.Authors = p.AuthorNames()
		node.SubjectAreas = p.SubjectAreas
	}
	return node
}

// filterByCategory keeps candidates whose subject areas intersect categories.
// Applied before similarity computation to bound cost.
func (b *Builder) filterByCategory(candidates []string, categories []string) []string {
	if len(categories) == 0 || b.meta == nil {
		return candidates
	}
	var kept []string
	for _, id := range candidates {
		p, err := b.meta.Get(id)
		if err != nil {
			continue
		}
		if p.HasAnySubjectArea(categories) {
			kept = append(kept, id)
		}
	}
	return kept
}

// sampleIDs draws a seeded uniform sample without replacement, preserving
// the input order of the selected ids so equal seeds give equal graphs.
func sampleIDs(ids []string, sampleSize int, seed int64) []string {
	if sampleSize <= 0 || sampleSize >= len(ids) {
		return ids
	}
	rng := rand.New(rand.NewSource(seed))
	picked := rng.Perm(len(ids))[:sampleSize]
	sort.Ints(picked)

	out := make([]string, sampleSize)
	for i, idx := range picked {
		out[i] = ids[idx]
	}
	return out
}
