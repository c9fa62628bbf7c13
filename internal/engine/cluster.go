package engine

import (
	"math/rand"

	"github.com/scrypster/recall/internal/vecmath"
)

const (
	// kmeansMaxIterations caps the assign/recompute loop.
	kmeansMaxIterations = 50

	// kmeansShiftTolerance stops iteration once the maximum centroid shift,
	// measured as 1 - cosine(old, new), falls below this value.
	kmeansShiftTolerance = 1e-4
)

// clusterCount derives K for n vectors: round(n/50) clamped to [2,32], and
// never more than n.
func clusterCount(n int) int {
	k := (n + 25) / 50
	if k < 2 {
		k = 2
	}
	if k > 32 {
		k = 32
	}
	if k > n {
		k = n
	}
	return k
}

// sphericalKMeans clusters unit-normalized vectors by cosine similarity.
// It seeds centroids with cosine-distance k-means++, assigns each vector to
// the centroid of maximum dot product, and recomputes centroids as the
// normalized mean of their members. Returns the member index lists per
// cluster; empty clusters come back as empty lists.
func sphericalKMeans(vectors [][]float32, k int, rng *rand.Rand) [][]int {
	if len(vectors) == 0 || k <= 0 {
		return nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	centroids := seedCentroids(vectors, k, rng)
	assignment := make([]int, len(vectors))

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		// Assign each vector to its nearest centroid by dot product.
		for i, v := range vectors {
			best, bestSim := 0, vecmath.DotOne(v, centroids[0])
			for c := 1; c < k; c++ {
				if sim := vecmath.DotOne(v, centroids[c]); sim > bestSim {
					best, bestSim = c, sim
				}
			}
			assignment[i] = best
		}

		// Recompute centroids; an empty cluster keeps its old centroid.
		maxShift := 0.0
		for c := 0; c < k; c++ {
			var members [][]float32
			for i, a := range assignment {
				if a == c {
					members = append(members, vectors[i])
				}
			}
			if len(members) == 0 {
				continue
			}
			next := vecmath.Mean(members)
			vecmath.Normalize(next)
			if shift := 1.0 - vecmath.DotOne(centroids[c], next); shift > maxShift {
				maxShift = shift
			}
			centroids[c] = next
		}

		if maxShift < kmeansShiftTolerance {
			break
		}
	}

	clusters := make([][]int, k)
	for i, a := range assignment {
		clusters[a] = append(clusters[a], i)
	}
	return clusters
}

// seedCentroids implements cosine-distance k-means++: the first centroid is
// a uniformly random vector, and each subsequent centroid is chosen with
// probability proportional to the squared cosine distance (1 - cos) to the
// nearest already-chosen centroid.
func seedCentroids(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, vectors[rng.Intn(len(vectors))])

	dists := make([]float64, len(vectors))
	for len(centroids) < k {
		var total float64
		for i, v := range vectors {
			// Cosine may be negative, so seed nearest from the first
			// centroid rather than zero.
			nearest := vecmath.DotOne(v, centroids[0])
			for _, c := range centroids[1:] {
				if sim := vecmath.DotOne(v, c); sim > nearest {
					nearest = sim
				}
			}
			d := 1.0 - nearest
			dists[i] = d * d
			total += dists[i]
		}

		if total <= 0 {
			// All vectors coincide with a centroid; any choice is equivalent.
			centroids = append(centroids, vectors[rng.Intn(len(vectors))])
			continue
		}

		target := rng.Float64() * total
		chosen := len(vectors) - 1
		var acc float64
		for i, d := range dists {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, vectors[chosen])
	}
	return centroids
}
