package projection

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string][]float32

func (m mapSource) Get(id string) ([]float32, bool) {
	v, ok := m[id]
	return v, ok
}

func finitePoints(t *testing.T, r *Result) {
	t.Helper()
	for _, p := range r.Points {
		require.False(t, math.IsNaN(p.X) || math.IsInf(p.X, 0), "x must be finite for %s", p.ID)
		require.False(t, math.IsNaN(p.Y) || math.IsInf(p.Y, 0), "y must be finite for %s", p.ID)
	}
}

func TestProjectOnePointPerID(t *testing.T) {
	src := mapSource{
		"A": {1, 0, 0},
		"B": {0.9, 0.1, 0},
		"C": {0, 1, 0},
		"D": {0, 0, 1},
	}
	eng := NewEngine(src, DefaultConfig(42))

	res, err := eng.Project(context.Background(), []string{"A", "B", "C", "D"})
	require.NoError(t, err)
	require.Len(t, res.Points, 4)
	assert.False(t, res.Degraded)
	finitePoints(t, res)

	seen := make(map[string]bool)
	for _, p := range res.Points {
		seen[p.ID] = true
	}
	assert.Len(t, seen, 4)
}

func TestProjectPreservesRelativeDistance(t *testing.T) {
	// A and B are nearly parallel; C is orthogonal to both, so the layout
	// must place A closer to B than to C.
	src := mapSource{
		"A": {1, 0},
		"B": {0.98, 0.02},
		"C": {0, 1},
	}
	eng := NewEngine(src, DefaultConfig(42))

	res, err := eng.Project(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	require.False(t, res.Degraded)

	byID := make(map[string]Point)
	for _, p := range res.Points {
		byID[p.ID] = p
	}
	ab := math.Hypot(byID["A"].X-byID["B"].X, byID["A"].Y-byID["B"].Y)
	ac := math.Hypot(byID["A"].X-byID["C"].X, byID["A"].Y-byID["C"].Y)
	assert.Less(t, ab, ac)
}

func TestProjectDeterministic(t *testing.T) {
	src := mapSource{"A": {1, 0}, "B": {0.5, 0.5}, "C": {0, 1}}
	eng := NewEngine(src, DefaultConfig(42))

	first, err := eng.Project(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	second, err := eng.Project(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProjectEmptyAndSingle(t *testing.T) {
	src := mapSource{"A": {1, 0}}
	eng := NewEngine(src, DefaultConfig(42))

	res, err := eng.Project(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Points)

	res, err = eng.Project(context.Background(), []string{"A"})
	require.NoError(t, err)
	require.Len(t, res.Points, 1)
	finitePoints(t, res)
}

func TestProjectFallbackOnNumericalFailure(t *testing.T) {
	// A NaN-poisoned embedding drives the whole optimization non-finite; the
	// engine must degrade to seeded-uniform coordinates, not propagate NaN.
	src := mapSource{
		"A": {float32(math.NaN()), 1},
		"B": {1, 0},
		"C": {0, 1},
	}
	eng := NewEngine(src, DefaultConfig(42))

	res, err := eng.Project(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.Len(t, res.Points, 3)
	finitePoints(t, res)
	for _, p := range res.Points {
		assert.LessOrEqual(t, math.Abs(p.X), 200.0)
		assert.LessOrEqual(t, math.Abs(p.Y), 200.0)
	}
}

func TestProjectFallbackDeterministic(t *testing.T) {
	src := mapSource{"A": {float32(math.NaN())}, "B": {1}}
	eng := NewEngine(src, DefaultConfig(42))

	first, err := eng.Project(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	second, err := eng.Project(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	require.True(t, first.Degraded)
	assert.Equal(t, first, second)
}

func TestProjectScaleFactorApplied(t *testing.T) {
	src := mapSource{"A": {1, 0}, "B": {0, 1}}

	cfg1 := DefaultConfig(42)
	cfg1.ScaleFactor = 1.0
	cfg2 := DefaultConfig(42)
	cfg2.ScaleFactor = 2.0

	res1, err := NewEngine(src, cfg1).Project(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	res2, err := NewEngine(src, cfg2).Project(context.Background(), []string{"A", "B"})
	require.NoError(t, err)

	for i := range res1.Points {
		assert.InDelta(t, res1.Points[i].X*2, res2.Points[i].X, 1e-9)
		assert.InDelta(t, res1.Points[i].Y*2, res2.Points[i].Y, 1e-9)
	}
}

func TestProjectCancellation(t *testing.T) {
	src := mapSource{"A": {1, 0}, "B": {0, 1}}
	eng := NewEngine(src, DefaultConfig(42))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Project(ctx, []string{"A", "B"})
	assert.ErrorIs(t, err, context.Canceled)
}
