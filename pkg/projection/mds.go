// Package projection computes 2D coordinates that approximate the cosine
// distances between embedding vectors, for force-free graph layout.
//
// The algorithm is SMACOF stress majorization (classical metric MDS): start
// from a seeded random layout and repeatedly apply the Guttman transform,
// which is guaranteed to not increase stress, until the stress reduction
// between iterations falls under the tolerance or the iteration cap is hit.
// Output coordinates are multiplied by a fixed spread factor for legibility;
// the factor is part of the contract so tests can assert exact output.
//
// The engine never fails: if the optimization produces a non-finite
// coordinate, every id instead gets an independently drawn seeded-uniform
// position and the result carries Degraded=true so callers can tell a real
// layout from the fallback.
package projection

import (
	"context"
	"math"
	"math/rand"

	"github.com/orneryd/papergraph/pkg/math/vector"
)

// Config controls the majorization loop.
type Config struct {
	// MaxIterations caps the Guttman transform iterations (default 500).
	MaxIterations int
	// Tolerance is the stress-reduction convergence threshold (default 1e-6).
	Tolerance float64
	// ScaleFactor spreads the final layout (default 2.0).
	ScaleFactor float64
	// FallbackSpread bounds fallback coordinates to [-spread, spread]
	// (default 200).
	FallbackSpread float64
	// Seed drives the initial layout and the fallback draw.
	Seed int64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig(seed int64) Config {
	return Config{
		MaxIterations:  500,
		Tolerance:      1e-6,
		ScaleFactor:    2.0,
		FallbackSpread: 200,
		Seed:           seed,
	}
}

// Point is one projected paper.
type Point struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Result is a full projection. Degraded marks the seeded-random fallback.
type Result struct {
	Points     []Point `json:"points"`
	Degraded   bool    `json:"degraded"`
	Stress     float64 `json:"stress"`
	Iterations int     `json:"iterations"`
}

// VectorSource supplies embedding vectors by ID.
type VectorSource interface {
	Get(id string) ([]float32, bool)
}

// Engine projects embedding vectors to 2D.
type Engine struct {
	source VectorSource
	config Config
}

// NewEngine creates an engine over source.
func NewEngine(source VectorSource, config Config) *Engine {
	if config.MaxIterations <= 0 {
		config.MaxIterations = 500
	}
	if config.Tolerance <= 0 {
		config.Tolerance = 1e-6
	}
	if config.ScaleFactor == 0 {
		config.ScaleFactor = 2.0
	}
	if config.FallbackSpread <= 0 {
		config.FallbackSpread = 200
	}
	return &Engine{source: source, config: config}
}

// Project returns one finite (x, y) per input id.
func (e *Engine) Project(ctx context.Context, ids []string) (*Result, error) {
	n := len(ids)
	if n == 0 {
		return &Result{Points: []Point{}}, nil
	}

	dist := e.distanceMatrix(ids)

	coords, stress, iterations := e.majorize(ctx, dist, n)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !allFinite(coords) {
		return e.fallback(ids), nil
	}

	points := make([]Point, n)
	for i, id := range ids {
		points[i] = Point{
			ID: id,
			X:  coords[i][0] * e.config.ScaleFactor,
			Y:  coords[i][1] * e.config.ScaleFactor,
		}
	}
	return &Result{Points: points, Stress: stress, Iterations: iterations}, nil
}

// distanceMatrix builds the cosine distance (1 - similarity) matrix over ids.
// An id with no stored vector has zero norm, so its similarity is 0 and its
// distance to everything is 1.
func (e *Engine) distanceMatrix(ids []string) [][]float64 {
	n := len(ids)
	normalized := make([][]float32, n)
	for i, id := range ids {
		if vec, ok := e.source.Get(id); ok {
			normalized[i] = vector.Normalize(vec)
		}
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sim float64
			if normalized[i] != nil && normalized[j] != nil {
				sim = vector.DotProduct(normalized[i], normalized[j])
			}
			d := 1 - sim
			if d < 0 {
				d = 0
			}
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// majorize runs the SMACOF iteration and returns final coordinates, final
// stress, and the number of iterations performed.
func (e *Engine) majorize(ctx context.Context, dist [][]float64, n int) ([][2]float64, float64, int) {
	rng := rand.New(rand.NewSource(e.config.Seed))

	// Seeded random initial layout.
	coords := make([][2]float64, n)
	for i := range coords {
		coords[i][0] = rng.Float64()*2 - 1
		coords[i][1] = rng.Float64()*2 - 1
	}
	if n == 1 {
		return coords, 0, 0
	}

	prevStress := stress(dist, coords)
	iterations := 0

	next := make([][2]float64, n)
	for iter := 0; iter < e.config.MaxIterations; iter++ {
		if ctx.Err() != nil {
			return coords, prevStress, iterations
		}

		// Guttman transform with uniform weights:
		// next_i = (1/n) Σ_{j≠i} [ coords_j + δ_ij * (coords_i - coords_j) / d_ij ]
		for i := 0; i < n; i++ {
			var sx, sy float64
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				dx := coords[i][0] - coords[j][0]
				dy := coords[i][1] - coords[j][1]
				d := math.Hypot(dx, dy)
				if d > 0 {
					ratio := dist[i][j] / d
					sx += coords[j][0] + ratio*dx
					sy += coords[j][1] + ratio*dy
				} else {
					sx += coords[j][0]
					sy += coords[j][1]
				}
			}
			next[i][0] = sx / float64(n)
			next[i][1] = sy / float64(n)
		}
		coords, next = next, coords
		iterations++

		cur := stress(dist, coords)
		if prevStress-cur < e.config.Tolerance {
			prevStress = cur
			break
		}
		prevStress = cur
	}
	return coords, prevStress, iterations
}

// stress is the raw stress: sum of squared discrepancies between target and
// layout distances.
func stress(dist [][]float64, coords [][2]float64) float64 {
	var total float64
	n := len(coords)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Hypot(coords[i][0]-coords[j][0], coords[i][1]-coords[j][1])
			diff := dist[i][j] - d
			total += diff * diff
		}
	}
	return total
}

// fallback draws independent seeded-uniform coordinates for every id.
func (e *Engine) fallback(ids []string) *Result {
	rng := rand.New(rand.NewSource(e.config.Seed))
	spread := e.config.FallbackSpread

	points := make([]Point, len(ids))
	for i, id := range ids {
		points[i] = Point{
			ID: id,
			X:  rng.Float64()*2*spread - spread,
			Y:  rng.Float64()*2*spread - spread,
		}
	}
	return &Result{Points: points, Degraded: true}
}

func allFinite(coords [][2]float64) bool {
	for _, c := range coords {
		if math.IsNaN(c[0]) || math.IsInf(c[0], 0) || math.IsNaN(c[1]) || math.IsInf(c[1], 0) {
			return false
		}
	}
	return true
}
