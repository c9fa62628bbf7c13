// Package vecmath provides the small set of numeric vector utilities the
// memory engine depends on: in-place L2 normalization and batched dot
// products over pre-normalized vectors.
package vecmath

import "math"

// epsilon is the norm threshold below which a vector is treated as zero and
// left untouched by Normalize.
const epsilon = 1e-12

// Normalize scales v in place to unit L2 norm. Vectors whose norm is at or
// below machine epsilon are left as-is, so a zero vector stays zero.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm <= epsilon {
		return
	}
	inv := 1.0 / norm
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// DotOne returns the dot product of two equal-dimension vectors. Both sides
// are expected to be pre-normalized, so this doubles as cosine similarity.
// Mismatched or empty vectors yield 0.
func DotOne(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Dot returns the per-row dot products of query against each row of matrix.
// Rows whose dimension does not match the query produce 0. The accumulation
// order here and in DotOne must agree within 1e-5; tests hold the two to
// that contract.
func Dot(query []float32, matrix [][]float32) []float64 {
	out := make([]float64, len(matrix))
	for i, row := range matrix {
		if len(row) != len(query) {
			continue
		}
		var sum float64
		for j := range row {
			sum += float64(query[j]) * float64(row[j])
		}
		out[i] = sum
	}
	return out
}

// Mean returns the element-wise mean of the given equal-dimension vectors.
// Returns nil for an empty input.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	acc := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			acc[i] += float64(v[i])
		}
	}
	out := make([]float32, dim)
	inv := 1.0 / float64(len(vectors))
	for i, x := range acc {
		out[i] = float32(x * inv)
	}
	return out
}
