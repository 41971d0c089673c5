// Package vector provides the float32 vector kernels shared by the
// similarity, clustering, and projection engines.
//
// All accumulation happens in float64 to keep scores stable for
// high-dimensional embeddings; inputs and outputs stay float32 to match the
// stored embedding format.
package vector

import "math"

// DotProduct returns the dot product of a and b.
// Slices of unequal length are compared over the shorter prefix.
func DotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	// 4-way unrolled accumulation for instruction-level parallelism.
	var sum0, sum1, sum2, sum3 float64
	i := 0
	for ; i <= n-4; i += 4 {
		sum0 += float64(a[i]) * float64(b[i])
		sum1 += float64(a[i+1]) * float64(b[i+1])
		sum2 += float64(a[i+2]) * float64(b[i+2])
		sum3 += float64(a[i+3]) * float64(b[i+3])
	}
	for ; i < n; i++ {
		sum0 += float64(a[i]) * float64(b[i])
	}
	return sum0 + sum1 + sum2 + sum3
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(DotProduct(v, v))
}

// Normalize returns a unit-length copy of v. A zero vector is returned as a
// zero-filled copy rather than NaN-filled, so cosine similarity against it
// degrades to 0.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	norm := Norm(v)
	if norm == 0 {
		return out
	}
	inv := 1.0 / norm
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// CosineSimilarity returns dot(a,b) / (|a|·|b|).
//
// If either vector has zero norm the similarity is 0, never NaN; malformed
// embeddings must not poison whole-matrix computations.
func CosineSimilarity(a, b []float32) float64 {
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return DotProduct(a, b) / (na * nb)
}

// SquaredEuclidean computes the squared Euclidean distance between a and b.
// Uses 4-way loop unrolling, matching the layout of DotProduct.
func SquaredEuclidean(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var sum0, sum1, sum2, sum3 float64
	i := 0
	for ; i <= n-4; i += 4 {
		d0 := float64(a[i] - b[i])
		d1 := float64(a[i+1] - b[i+1])
		d2 := float64(a[i+2] - b[i+2])
		d3 := float64(a[i+3] - b[i+3])
		sum0 += d0 * d0
		sum1 += d1 * d1
		sum2 += d2 * d2
		sum3 += d3 * d3
	}
	for ; i < n; i++ {
		d := float64(a[i] - b[i])
		sum0 += d * d
	}
	return sum0 + sum1 + sum2 + sum3
}
