package vecmath

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnitNorm(t *testing.T) {
	v := []float32{3, 4, 0}
	Normalize(v)
	assert.InDelta(t, 1.0, Norm(v), 1e-5)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-5)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-5)
}

func TestNormalizeZeroVectorIsNoop(t *testing.T) {
	v := []float32{0, 0, 0, 0}
	Normalize(v)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestDotOneMismatchedDims(t *testing.T) {
	assert.Zero(t, DotOne([]float32{1, 2}, []float32{1}))
	assert.Zero(t, DotOne(nil, nil))
}

// TestDotMatchesDotOne holds the batched routine and the single-vector loop
// to numerical agreement within 1e-5 over random normalized inputs.
func TestDotMatchesDotOne(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	const dim = 64
	query := randomUnit(rng, dim)
	matrix := make([][]float32, 100)
	for i := range matrix {
		matrix[i] = randomUnit(rng, dim)
	}

	batched := Dot(query, matrix)
	require.Len(t, batched, len(matrix))

	for i, row := range matrix {
		single := DotOne(query, row)
		assert.InDelta(t, single, batched[i], 1e-5, "row %d", i)
		assert.LessOrEqual(t, math.Abs(batched[i]), 1.0+1e-5)
	}
}

func TestMean(t *testing.T) {
	got := Mean([][]float32{{1, 2}, {3, 4}})
	assert.InDelta(t, 2.0, float64(got[0]), 1e-6)
	assert.InDelta(t, 3.0, float64(got[1]), 1e-6)
	assert.Nil(t, Mean(nil))
}

func randomUnit(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	Normalize(v)
	return v
}
