// Package papergraph ties the embedding store, similarity index, graph
// builder, cluster engine, projection engine, and result cache into the
// engine consumed by the API layer.
//
// The engine is explicitly constructed and dependency-injected: no package
// globals, no lazy initialization. Randomized paths (sampling, clustering
// initialization, projection layout and fallback) all derive from the single
// configured seed, so a given parameter set returns identical results
// regardless of request ordering.
package papergraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/orneryd/papergraph/pkg/cluster"
	"github.com/orneryd/papergraph/pkg/config"
	"github.com/orneryd/papergraph/pkg/embeddings"
	"github.com/orneryd/papergraph/pkg/graph"
	"github.com/orneryd/papergraph/pkg/papers"
	"github.com/orneryd/papergraph/pkg/projection"
	"github.com/orneryd/papergraph/pkg/resultcache"
	"github.com/orneryd/papergraph/pkg/similarity"
)

var (
	// ErrNotFound is returned when the target of a single-document query has
	// no embedding and no metadata. Missing embeddings elsewhere contribute
	// nothing instead of failing the operation.
	ErrNotFound = errors.New("papergraph: not found")

	// ErrInvalidParameter is returned for out-of-range request parameters,
	// before any computation starts.
	ErrInvalidParameter = errors.New("papergraph: invalid parameter")
)

// maxAdaptiveClusters caps the adaptive cluster count used for graph and map
// annotation; the divisor keeps tiny corpora uncluttered.
const (
	maxAdaptiveClusters    = 10
	adaptiveClusterDivisor = 20
)

// Engine is the similarity graph engine.
type Engine struct {
	cfg        config.EngineConfig
	embeddings *embeddings.Store
	papers     *papers.Store
	index      *similarity.Index
	builder    *graph.Builder
	clusters   *cluster.Engine
	projector  *projection.Engine
	cache      *resultcache.Cache // nil disables memoization
	log        zerolog.Logger
}

// New wires an engine from its stores. cache may be nil to disable
// memoization (every request recomputes).
func New(cfg config.EngineConfig, emb *embeddings.Store, paperStore *papers.Store, cache *resultcache.Cache, log zerolog.Logger) *Engine {
	idx := similarity.NewIndex(emb)

	clusterCfg := cluster.DefaultConfig(cfg.Seed)
	if cfg.ClusterMaxIterations > 0 {
		clusterCfg.MaxIterations = cfg.ClusterMaxIterations
	}

	projCfg := projection.DefaultConfig(cfg.Seed)
	if cfg.ProjectionMaxIterations > 0 {
		projCfg.MaxIterations = cfg.ProjectionMaxIterations
	}
	if cfg.ProjectionTolerance > 0 {
		projCfg.Tolerance = cfg.ProjectionTolerance
	}
	if cfg.ProjectionScale != 0 {
		projCfg.ScaleFactor = cfg.ProjectionScale
	}

	return &Engine{
		cfg:        cfg,
		embeddings: emb,
		papers:     paperStore,
		index:      idx,
		builder:    graph.NewBuilder(idx, paperStore),
		clusters:   cluster.NewEngine(emb, clusterCfg),
		projector:  projection.NewEngine(emb, projCfg),
		cache:      cache,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// SimilarPaper is one similarity match enriched with metadata.
type SimilarPaper struct {
	PaperID string        `json:"paper_id"`
	Score   float64       `json:"similarity_score"`
	Paper   *papers.Paper `json:"paper,omitempty"`
}

// SimilarPapers returns up to k papers most similar to id, descending by
// score, all scoring at least minScore. The target must have an embedding.
func (e *Engine) SimilarPapers(ctx context.Context, id string, k int, minScore float64) ([]SimilarPaper, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidParameter, k)
	}
	if _, ok := e.embeddings.Get(id); !ok {
		return nil, fmt.Errorf("%w: no embedding for %q", ErrNotFound, id)
	}

	ctx, cancel := e.computeContext(ctx)
	defer cancel()

	matches, err := e.index.TopK(ctx, id, k, minScore)
	if err != nil {
		return nil, err
	}

	out := make([]SimilarPaper, len(matches))
	for i, m := range matches {
		out[i] = SimilarPaper{PaperID: m.ID, Score: m.Score}
		if p, err := e.papers.Get(m.ID); err == nil {
			out[i].Paper = p
		}
	}
	return out, nil
}

// GraphParams controls BuildGraph.
type GraphParams struct {
	Threshold    float64  `json:"threshold"`
	MaxEdges     int      `json:"max_edges"`
	SampleSize   int      `json:"sample_size,omitempty"`
	SubjectAreas []string `json:"subject_areas,omitempty"`
}

// ClusterInfo describes one cluster in a graph response.
type ClusterInfo struct {
	ID     int       `json:"id"`
	Papers []string  `json:"papers"`
	Center []float32 `json:"center,omitempty"`
}

// GraphResult is the full graph response.
type GraphResult struct {
	Nodes    []graph.Node        `json:"nodes"`
	Edges    []graph.Edge        `json:"edges"`
	Clusters map[int]ClusterInfo `json:"clusters,omitempty"`
	Degraded bool                `json:"degraded,omitempty"`
}

// BuildGraph assembles the thresholded similarity graph over the whole
// corpus (or a filtered/sampled subset) and annotates nodes with adaptive
// k-means clusters.
func (e *Engine) BuildGraph(ctx context.Context, params GraphParams) (*GraphResult, error) {
	if params.Threshold < 0 || params.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidParameter, params.Threshold)
	}
	if params.MaxEdges < 1 {
		return nil, fmt.Errorf("%w: max_edges must be >= 1, got %d", ErrInvalidParameter, params.MaxEdges)
	}
	if params.SampleSize < 0 {
		return nil, fmt.Errorf("%w: sample_size must be >= 0, got %d", ErrInvalidParameter, params.SampleSize)
	}

	ctx, cancel := e.computeContext(ctx)
	defer cancel()

	g, err := e.builder.Build(ctx, e.embeddings.IDs(), graph.Options{
		Threshold:  params.Threshold,
		MaxEdges:   params.MaxEdges,
		SampleSize: params.SampleSize,
		Categories: params.SubjectAreas,
		Seed:       e.cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	result := &GraphResult{Nodes: g.Nodes, Edges: g.Edges}

	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	e.annotateClusters(ctx, result, ids)
	return result, nil
}

// annotateClusters attaches adaptive k-means clusters to the nodes of
// result. Clustering failure degrades the response instead of failing it.
func (e *Engine) annotateClusters(ctx context.Context, result *GraphResult, ids []string) {
	k := adaptiveClusterCount(len(ids))
	if k < 2 {
		return
	}

	partition, err := e.clusters.Partition(ctx, ids, k)
	if err != nil {
		e.log.Warn().Err(err).Msg("cluster annotation failed, returning unclustered graph")
		result.Degraded = true
		return
	}

	assignment := make(map[string]int, len(ids))
	clusters := make(map[int]ClusterInfo, len(partition))
	for _, c := range partition {
		clusters[c.ID] = ClusterInfo{ID: c.ID, Papers: c.Members, Center: c.Centroid}
		for _, id := range c.Members {
			assignment[id] = c.ID
		}
	}
	for i := range result.Nodes {
		if cid, ok := assignment[result.Nodes[i].ID]; ok {
			c := cid
			result.Nodes[i].Cluster = &c
		}
	}
	result.Clusters = clusters
}

// adaptiveClusterCount mirrors the presentation heuristic min(10, n/20).
func adaptiveClusterCount(n int) int {
	k := n / adaptiveClusterDivisor
	if k > maxAdaptiveClusters {
		k = maxAdaptiveClusters
	}
	return k
}

// Partition splits the whole corpus into at most k clusters.
func (e *Engine) Partition(ctx context.Context, k int) (map[int][]string, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidParameter, k)
	}

	ctx, cancel := e.computeContext(ctx)
	defer cancel()

	clusters, err := e.clusters.Partition(ctx, e.embeddings.IDs(), k)
	if err != nil {
		return nil, err
	}

	out := make(map[int][]string, len(clusters))
	for _, c := range clusters {
		out[c.ID] = c.Members
	}
	return out, nil
}

// projectAllKey memoizes the full-corpus projection.
const projectAllKey = "mds_all"

// Project returns 2D coordinates for ids, or for the whole corpus when ids
// is empty. The whole-corpus projection is memoized; subset projections are
// computed per request.
func (e *Engine) Project(ctx context.Context, ids []string) (*projection.Result, error) {
	ctx, cancel := e.computeContext(ctx)
	defer cancel()

	if len(ids) > 0 {
		return e.projector.Project(ctx, ids)
	}

	payload, err := e.getOrComputeJSON(ctx, projectAllKey, func(ctx context.Context) (any, error) {
		return e.projector.Project(ctx, e.embeddings.IDs())
	})
	if err != nil {
		return nil, err
	}

	var result projection.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("papergraph: decode cached projection: %w", err)
	}
	return &result, nil
}

// MapParams controls SimilarityMap.
type MapParams struct {
	SampleSize   int      `json:"sample_size,omitempty"`
	SubjectAreas []string `json:"subject_areas,omitempty"`
}

// SimilarityMap lays the (optionally filtered/sampled) corpus out in 2D with
// cluster annotations and no edges: the scatter view of the corpus.
func (e *Engine) SimilarityMap(ctx context.Context, params MapParams) (*GraphResult, error) {
	if params.SampleSize < 0 {
		return nil, fmt.Errorf("%w: sample_size must be >= 0, got %d", ErrInvalidParameter, params.SampleSize)
	}

	ctx, cancel := e.computeContext(ctx)
	defer cancel()

	// Threshold 1.0 with the smallest budget: layout only, no edge survives.
	g, err := e.builder.Build(ctx, e.embeddings.IDs(), graph.Options{
		Threshold:  1.0,
		MaxEdges:   1,
		SampleSize: params.SampleSize,
		Categories: params.SubjectAreas,
		Seed:       e.cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}

	proj, err := e.projector.Project(ctx, ids)
	if err != nil {
		return nil, err
	}
	coords := make(map[string]projection.Point, len(proj.Points))
	for _, p := range proj.Points {
		coords[p.ID] = p
	}
	for i := range g.Nodes {
		if p, ok := coords[g.Nodes[i].ID]; ok {
			x, y := p.X, p.Y
			g.Nodes[i].X = &x
			g.Nodes[i].Y = &y
		}
	}

	result := &GraphResult{Nodes: g.Nodes, Edges: []graph.Edge{}, Degraded: proj.Degraded}
	e.annotateClusters(ctx, result, ids)
	return result, nil
}

// NetworkCoordinate is one positioned paper in a network view.
type NetworkCoordinate struct {
	PaperID      string   `json:"paper_id"`
	X            float64  `json:"x"`
	Y            float64  `json:"y"`
	Title        string   `json:"title,omitempty"`
	Authors      []string `json:"authors,omitempty"`
	SubjectAreas []string `json:"subject_areas,omitempty"`
}

// NetworkResult is the per-paper neighborhood view: the target, its top-k
// similar papers, their global-layout coordinates, and the subset cosine
// distance matrix.
type NetworkResult struct {
	TargetPaper    *papers.Paper       `json:"target_paper"`
	SimilarPapers  []SimilarPaper      `json:"similar_papers"`
	Coordinates    []NetworkCoordinate `json:"coordinates"`
	DistanceMatrix [][]float64         `json:"distance_matrix"`
	Degraded       bool                `json:"degraded,omitempty"`
}

// Network returns the memoized neighborhood view for paperID.
func (e *Engine) Network(ctx context.Context, paperID string, topK int) (*NetworkResult, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidParameter, topK)
	}
	_, hasEmbedding := e.embeddings.Get(paperID)
	if !hasEmbedding && !e.papers.Has(paperID) {
		return nil, fmt.Errorf("%w: paper %q", ErrNotFound, paperID)
	}

	ctx, cancel := e.computeContext(ctx)
	defer cancel()

	key := resultcache.Key("network", paperID, strconv.Itoa(topK))
	payload, err := e.getOrComputeJSON(ctx, key, func(ctx context.Context) (any, error) {
		return e.buildNetwork(ctx, paperID, topK)
	})
	if err != nil {
		return nil, err
	}

	var result NetworkResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("papergraph: decode cached network: %w", err)
	}
	return &result, nil
}

func (e *Engine) buildNetwork(ctx context.Context, paperID string, topK int) (*NetworkResult, error) {
	target, err := e.papers.Get(paperID)
	if err != nil {
		// Embedding exists but no metadata: keep the bare ID.
		target = &papers.Paper{ID: paperID}
	}

	matches, err := e.index.TopK(ctx, paperID, topK, 0)
	if err != nil {
		return nil, err
	}

	similar := make([]SimilarPaper, len(matches))
	subset := make([]string, 0, len(matches)+1)
	subset = append(subset, paperID)
	for i, m := range matches {
		similar[i] = SimilarPaper{PaperID: m.ID, Score: m.Score}
		if p, err := e.papers.Get(m.ID); err == nil {
			similar[i].Paper = p
		}
		subset = append(subset, m.ID)
	}

	// Position the subset on the global layout so neighborhoods stay
	// comparable across papers.
	global, err := e.Project(ctx, nil)
	if err != nil {
		return nil, err
	}
	coords := make(map[string]projection.Point, len(global.Points))
	for _, p := range global.Points {
		coords[p.ID] = p
	}

	coordinates := make([]NetworkCoordinate, 0, len(subset))
	for _, id := range subset {
		p, ok := coords[id]
		if !ok {
			e.log.Warn().Str("paper_id", id).Msg("no layout coordinates for paper")
			continue
		}
		nc := NetworkCoordinate{PaperID: id, X: p.X, Y: p.Y}
		if meta, err := e.papers.Get(id); err == nil {
			nc.Title = meta.Title
			nc.Authors = meta.AuthorNames()
			nc.SubjectAreas = meta.SubjectAreas
		}
		coordinates = append(coordinates, nc)
	}

	matrix, err := e.index.PairwiseMatrix(ctx, subset)
	if err != nil {
		return nil, err
	}
	distances := make([][]float64, len(matrix))
	for i, row := range matrix {
		distances[i] = make([]float64, len(row))
		for j, sim := range row {
			if i == j {
				continue
			}
			distances[i][j] = 1 - sim
		}
	}

	return &NetworkResult{
		TargetPaper:    target,
		SimilarPapers:  similar,
		Coordinates:    coordinates,
		DistanceMatrix: distances,
		Degraded:       global.Degraded,
	}, nil
}

// Stats summarizes the loaded corpus.
type Stats struct {
	TotalPapers     int            `json:"total_papers"`
	TotalAuthors    int            `json:"total_authors"`
	TotalEmbeddings int            `json:"total_embeddings"`
	Dimensions      int            `json:"dimensions"`
	SubjectAreas    map[string]int `json:"subject_areas"`
}

// Stats returns corpus statistics.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	return &Stats{
		TotalPapers:     e.papers.Count(),
		TotalAuthors:    e.papers.AuthorCount(),
		TotalEmbeddings: e.embeddings.Count(),
		Dimensions:      e.embeddings.Dimensions(),
		SubjectAreas:    e.papers.SubjectAreaCounts(),
	}, nil
}

// ClearCache drops every memoized result. Callers use this after replacing
// the corpus; nothing expires on its own.
func (e *Engine) ClearCache() (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.Clear()
}

// computeContext bounds the caller's wait by the configured timeout. A
// cache-shared computation keeps running for other waiters past it.
func (e *Engine) computeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.ComputeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.ComputeTimeout)
}

// getOrComputeJSON memoizes the JSON encoding of compute's result under key,
// or computes directly when caching is disabled.
func (e *Engine) getOrComputeJSON(ctx context.Context, key string, compute func(ctx context.Context) (any, error)) ([]byte, error) {
	fn := func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	if e.cache == nil {
		return fn(ctx)
	}
	return e.cache.GetOrCompute(ctx, key, fn)
}
