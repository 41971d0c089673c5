package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{5, 4, 3, 2, 1}
	assert.InDelta(t, 35.0, DotProduct(a, b), 1e-9)
}

func TestNormalizeUnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	assert.InDelta(t, 1.0, Norm(v), 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := Normalize([]float32{0, 0, 0})
	for _, x := range v {
		assert.Zero(t, x)
		assert.False(t, math.IsNaN(float64(x)))
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 3}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-2, 0}), 1e-9)
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := []float32{0.1, 0.7, 0.3, 0.9}
	b := []float32{0.4, 0.2, 0.8, 0.5}
	require.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
}

func TestCosineSimilarityZeroNorm(t *testing.T) {
	zero := []float32{0, 0, 0}
	other := []float32{1, 2, 3}
	sim := CosineSimilarity(zero, other)
	assert.Zero(t, sim)
	assert.False(t, math.IsNaN(sim))
}

func TestSquaredEuclidean(t *testing.T) {
	a := []float32{0, 0, 0, 0, 0}
	b := []float32{1, 2, 0, 2, 1}
	assert.InDelta(t, 10.0, SquaredEuclidean(a, b), 1e-9)
	assert.Zero(t, SquaredEuclidean(a, a))
}
