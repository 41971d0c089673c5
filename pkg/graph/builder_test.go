package graph

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/papergraph/pkg/papers"
	"github.com/orneryd/papergraph/pkg/similarity"
)

type mapSource map[string][]float32

func (m mapSource) Get(id string) ([]float32, bool) {
	v, ok := m[id]
	return v, ok
}

func (m mapSource) GetAll(ids ...string) map[string][]float32 {
	out := make(map[string][]float32)
	if len(ids) == 0 {
		for id, v := range m {
			out[id] = v
		}
		return out
	}
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out[id] = v
		}
	}
	return out
}

func (m mapSource) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type mapMeta map[string]*papers.Paper

func (m mapMeta) Get(id string) (*papers.Paper, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, papers.ErrNotFound
}

// knownCorpus: four unit vectors whose pairwise cosine similarities are
// sim(A,B)=0.9 sim(A,C)=0.5 sim(A,D)=0.1 sim(B,C)=0.4 sim(B,D)=0.2
// sim(C,D)=0.3 (Cholesky factor of the target Gram matrix).
func knownCorpus() mapSource {
	return mapSource{
		"A": {1, 0, 0, 0},
		"B": {0.9, 0.4358899, 0, 0},
		"C": {0.5, -0.1147079, 0.8583951, 0},
		"D": {0.1, 0.2523573, 0.3249639, 0.9059328},
	}
}

func testBuilder(meta MetadataSource) *Builder {
	return NewBuilder(similarity.NewIndex(knownCorpus()), meta)
}

func TestBuildEdgeCapScenario(t *testing.T) {
	b := testBuilder(nil)

	g, err := b.Build(context.Background(), []string{"A", "B", "C", "D"},
		Options{Threshold: 0.35, MaxEdges: 2})
	require.NoError(t, err)
	require.Len(t, g.Edges, 2)

	assert.Equal(t, "A", g.Edges[0].Source)
	assert.Equal(t, "B", g.Edges[0].Target)
	assert.InDelta(t, 0.9, g.Edges[0].Score, 1e-4)

	assert.Equal(t, "A", g.Edges[1].Source)
	assert.Equal(t, "C", g.Edges[1].Target)
	assert.InDelta(t, 0.5, g.Edges[1].Score, 1e-4)

	// Isolated nodes are still present.
	assert.Len(t, g.Nodes, 4)
}

func TestBuildCanonicalEdges(t *testing.T) {
	b := testBuilder(nil)
	g, err := b.Build(context.Background(), []string{"D", "C", "B", "A"},
		Options{Threshold: 0.0, MaxEdges: 100})
	require.NoError(t, err)
	require.Len(t, g.Edges, 6)

	seen := make(map[[2]string]bool)
	for _, e := range g.Edges {
		assert.NotEqual(t, e.Source, e.Target, "no self edges")
		assert.Less(t, e.Source, e.Target, "canonical order source < target")
		pair := [2]string{e.Source, e.Target}
		assert.False(t, seen[pair], "no duplicate pair %v", pair)
		seen[pair] = true
	}
}

func TestBuildThresholdStrict(t *testing.T) {
	b := testBuilder(nil)

	// Strictly greater: a pair scoring exactly the threshold is excluded.
	g, err := b.Build(context.Background(), []string{"A", "B", "C", "D"},
		Options{Threshold: 0.9, MaxEdges: 100})
	require.NoError(t, err)
	assert.Empty(t, g.Edges)
}

func TestBuildThresholdOneNoEdges(t *testing.T) {
	b := testBuilder(nil)
	g, err := b.Build(context.Background(), []string{"A", "B", "C", "D"},
		Options{Threshold: 1.0, MaxEdges: 100})
	require.NoError(t, err)
	assert.Empty(t, g.Edges)
	assert.Len(t, g.Nodes, 4)
}

func TestBuildFewerThanTwoCandidates(t *testing.T) {
	b := testBuilder(nil)

	g, err := b.Build(context.Background(), []string{"A"}, Options{Threshold: 0.5, MaxEdges: 10})
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Edges)

	g, err = b.Build(context.Background(), nil, Options{Threshold: 0.5, MaxEdges: 10})
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Edges)
}

func TestBuildCategoryFilter(t *testing.T) {
	meta := mapMeta{
		"A": {ID: "A", SubjectAreas: []string{"MRI"}},
		"B": {ID: "B", SubjectAreas: []string{"MRI", "CT"}},
		"C": {ID: "C", SubjectAreas: []string{"Ultrasound"}},
		"D": {ID: "D", SubjectAreas: []string{"CT"}},
	}
	b := testBuilder(meta)

	g, err := b.Build(context.Background(), []string{"A", "B", "C", "D"},
		Options{Threshold: 0.0, MaxEdges: 100, Categories: []string{"MRI"}})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "A", g.Nodes[0].ID)
	assert.Equal(t, "B", g.Nodes[1].ID)
	require.Len(t, g.Edges, 1)
	assert.InDelta(t, 0.9, g.Edges[0].Score, 1e-4)
}

func TestBuildMetadataPassthrough(t *testing.T) {
	meta := mapMeta{
		"A": {ID: "A", Title: "Paper A", Authors: []papers.Author{{Name: "Ada"}}, SubjectAreas: []string{"MRI"}},
	}
	b := testBuilder(meta)

	g, err := b.Build(context.Background(), []string{"A", "B"}, Options{Threshold: 0.99, MaxEdges: 10})
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "Paper A", g.Nodes[0].Title)
	assert.Equal(t, []string{"Ada"}, g.Nodes[0].Authors)
	// No metadata: node kept with bare ID.
	assert.Equal(t, "B", g.Nodes[1].ID)
	assert.Empty(t, g.Nodes[1].Title)
}

func TestBuildSamplingDeterministic(t *testing.T) {
	b := testBuilder(nil)
	opts := Options{Threshold: 0.0, MaxEdges: 100, SampleSize: 2, Seed: 42}

	first, err := b.Build(context.Background(), []string{"A", "B", "C", "D"}, opts)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), []string{"A", "B", "C", "D"}, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.Nodes, 2)
}

func TestBuildSampleLargerThanCandidates(t *testing.T) {
	b := testBuilder(nil)
	g, err := b.Build(context.Background(), []string{"A", "B"},
		Options{Threshold: 0.0, MaxEdges: 100, SampleSize: 50, Seed: 1})
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
}
