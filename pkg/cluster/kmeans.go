// Package cluster partitions embedding vectors into k groups with Lloyd's
// algorithm.
//
// Every run is deterministic: centroid initialization (k-means++ by default,
// plain random selection as an alternative) draws from a rand.Rand seeded by
// the caller, and iteration stops on the first pass with no reassignment or
// at the iteration cap. The same input and seed always yield the same
// partition.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/orneryd/papergraph/pkg/math/vector"
)

// Init methods for centroid selection.
const (
	InitKMeansPlusPlus = "kmeans++"
	InitRandom         = "random"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("cluster: k must be >= 1")

// Config controls the k-means iteration.
type Config struct {
	// MaxIterations caps Lloyd's iterations (default 100).
	MaxIterations int
	// InitMethod selects centroid initialization (default kmeans++).
	InitMethod string
	// Seed drives all randomness; equal seeds give equal partitions.
	Seed int64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig(seed int64) Config {
	return Config{
		MaxIterations: 100,
		InitMethod:    InitKMeansPlusPlus,
		Seed:          seed,
	}
}

// Cluster is one group of the partition.
type Cluster struct {
	ID       int       `json:"id"`
	Members  []string  `json:"members"`
	Centroid []float32 `json:"centroid,omitempty"`
}

// VectorSource supplies embedding vectors by ID.
type VectorSource interface {
	Get(id string) ([]float32, bool)
	Dimensions() int
}

// Engine runs seeded k-means over a VectorSource.
type Engine struct {
	source VectorSource
	config Config
}

// NewEngine creates an engine over source.
func NewEngine(source VectorSource, config Config) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = 100
	}
	if config.InitMethod == "" {
		config.InitMethod = InitKMeansPlusPlus
	}
	return &Engine{source: source, config: config}
}

// Partition splits ids into at most k clusters.
//
// Effective k is min(k, len(ids)); empty input returns an empty slice. Every
// input id lands in exactly one cluster: an id with no stored vector is
// treated as a zero vector rather than dropped, so the result is always an
// exact partition of the input. A cluster left empty at the iteration cap is
// degenerate but valid and is still returned.
func (e *Engine) Partition(ctx context.Context, ids []string, k int) ([]Cluster, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	n := len(ids)
	if n == 0 {
		return []Cluster{}, nil
	}
	if k > n {
		k = n
	}

	dims := e.source.Dimensions()
	if dims == 0 {
		return nil, errors.New("cluster: vector source has no dimensionality")
	}

	// Flat row-major copy; missing ids stay zero.
	vectors := make([]float32, n*dims)
	for i, id := range ids {
		if vec, ok := e.source.Get(id); ok && len(vec) == dims {
			copy(vectors[i*dims:(i+1)*dims], vec)
		}
	}

	rng := rand.New(rand.NewSource(e.config.Seed))

	var centroids [][]float32
	switch e.config.InitMethod {
	case InitRandom:
		centroids = initCentroidsRandom(rng, vectors, n, dims, k)
	case InitKMeansPlusPlus:
		centroids = initCentroidsKMeansPlusPlus(rng, vectors, n, dims, k)
	default:
		return nil, fmt.Errorf("cluster: unknown init method %q", e.config.InitMethod)
	}

	assignments := make([]int, n)
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := 0; c < k; c++ {
		sums[c] = make([]float64, dims)
	}

	for iter := 0; iter < e.config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := assignToCentroids(vectors, centroids, assignments, n, dims, k)
		updateCentroids(vectors, assignments, centroids, sums, counts, n, dims, k)
		if changed == 0 {
			break
		}
	}

	clusters := make([]Cluster, k)
	for c := 0; c < k; c++ {
		clusters[c] = Cluster{ID: c, Members: []string{}, Centroid: centroids[c]}
	}
	for i, c := range assignments {
		clusters[c].Members = append(clusters[c].Members, ids[i])
	}
	return clusters, nil
}

// Assignments returns the per-id cluster assignment as a map, a convenience
// over Partition for node annotation.
func (e *Engine) Assignments(ctx context.Context, ids []string, k int) (map[string]int, error) {
	clusters, err := e.Partition(ctx, ids, k)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(ids))
	for _, c := range clusters {
		for _, id := range c.Members {
			out[id] = c.ID
		}
	}
	return out, nil
}

// initCentroidsRandom picks k distinct rows as initial centroids.
func initCentroidsRandom(rng *rand.Rand, vectors []float32, n, dims, k int) [][]float32 {
	centroids := make([][]float32, k)
	selected := make(map[int]bool)
	for i := 0; i < k; i++ {
		var idx int
		for {
			idx = rng.Intn(n)
			if !selected[idx] {
				selected[idx] = true
				break
			}
		}
		centroids[i] = make([]float32, dims)
		copy(centroids[i], vectors[idx*dims:(idx+1)*dims])
	}
	return centroids
}

// initCentroidsKMeansPlusPlus seeds centroids proportional to D(x)² for
// better spread than random selection.
func initCentroidsKMeansPlusPlus(rng *rand.Rand, vectors []float32, n, dims, k int) [][]float32 {
	centroids := make([][]float32, k)

	firstIdx := rng.Intn(n)
	centroids[0] = make([]float32, dims)
	copy(centroids[0], vectors[firstIdx*dims:(firstIdx+1)*dims])

	minDistances := make([]float64, n)
	for i := 0; i < n; i++ {
		minDistances[i] = vector.SquaredEuclidean(vectors[i*dims:(i+1)*dims], centroids[0])
	}

	for c := 1; c < k; c++ {
		totalWeight := 0.0
		for i := 0; i < n; i++ {
			totalWeight += minDistances[i]
		}

		target := rng.Float64() * totalWeight
		cumWeight := 0.0
		selectedIdx := n - 1
		for i := 0; i < n; i++ {
			cumWeight += minDistances[i]
			if cumWeight >= target {
				selectedIdx = i
				break
			}
		}

		centroids[c] = make([]float32, dims)
		copy(centroids[c], vectors[selectedIdx*dims:(selectedIdx+1)*dims])

		for i := 0; i < n; i++ {
			distToNew := vector.SquaredEuclidean(vectors[i*dims:(i+1)*dims], centroids[c])
			if distToNew < minDistances[i] {
				minDistances[i] = distToNew
			}
		}
	}
	return centroids
}

// assignToCentroids assigns each row to its nearest centroid; returns the
// number of assignments that changed.
func assignToCentroids(vectors []float32, centroids [][]float32, assignments []int, n, dims, k int) int {
	changed := 0
	for i := 0; i < n; i++ {
		row := vectors[i*dims : (i+1)*dims]
		minDist := math.MaxFloat64
		nearest := 0
		for c := 0; c < k; c++ {
			dist := vector.SquaredEuclidean(row, centroids[c])
			if dist < minDist {
				minDist = dist
				nearest = c
			}
		}
		if assignments[i] != nearest {
			assignments[i] = nearest
			changed++
		}
	}
	return changed
}

// updateCentroids recomputes centroids as member means using pre-allocated
// buffers. Empty clusters keep their previous position.
func updateCentroids(vectors []float32, assignments []int, centroids [][]float32, sums [][]float64, counts []int, n, dims, k int) {
	for c := 0; c < k; c++ {
		counts[c] = 0
		for d := 0; d < dims; d++ {
			sums[c][d] = 0
		}
	}
	for i := 0; i < n; i++ {
		c := assignments[i]
		counts[c]++
		for d := 0; d < dims; d++ {
			sums[c][d] += float64(vectors[i*dims+d])
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			for d := 0; d < dims; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}
}
