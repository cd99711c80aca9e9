package ml

import (
	"context"
	"math"
	"math/rand"

	"github.com/converso-ai/nlu-engine/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

const defaultKMeansIterations = 50

// KMeans clusters vectors with Lloyd's algorithm and k-means++ seeding.
// It satisfies Clusterer.
type KMeans struct{}

// NewKMeans returns a ready-to-use clusterer.
func NewKMeans() *KMeans {
	return &KMeans{}
}

// Cluster implements Clusterer.  k is clamped to the number of distinct
// vectors; fewer than two vectors is a validation error (callers are expected
// to skip clustering for degenerate inputs).
func (km *KMeans) Cluster(ctx context.Context, vectors [][]float64, k int, opts ClusterOptions) (*Clustering, error) {
	if len(vectors) < 2 {
		return nil, errors.New(errors.ErrCodeValidation, "clustering requires at least two vectors")
	}
	if k < 1 {
		return nil, errors.Newf(errors.ErrCodeValidation, "k must be positive, got %d", k)
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, errors.Newf(errors.ErrCodeValidation, "vector %d: dimension %d, want %d", i, len(v), dim)
		}
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))

	centroids := seedPlusPlus(vectors, k, rng)

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultKMeansIterations
	}

	assign := make([]int, len(vectors))
	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "clustering cancelled")
		}

		changed := false
		for i, v := range vectors {
			c := nearestCentroid(centroids, v)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			floats.Add(next[assign[i]], v)
			counts[assign[i]]++
		}
		for c := range next {
			if counts[c] == 0 {
				// Empty cluster: re-seed from a random vector to keep k stable.
				copy(next[c], vectors[rng.Intn(len(vectors))])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}
		centroids = next
	}

	return &Clustering{Centroids: centroids}, nil
}

// Assign returns the index of the centroid nearest to vec, or -1 when the
// clustering is empty or the dimensions disagree.
func (c *Clustering) Assign(vec []float64) int {
	if c == nil || len(c.Centroids) == 0 || len(vec) != len(c.Centroids[0]) {
		return -1
	}
	return nearestCentroid(c.Centroids, vec)
}

func nearestCentroid(centroids [][]float64, v []float64) int {
	best, bestDist := 0, math.Inf(1)
	for ci, centroid := range centroids {
		if d := floats.Distance(centroid, v, 2); d < bestDist {
			best, bestDist = ci, d
		}
	}
	return best
}

// seedPlusPlus picks k initial centroids with k-means++ weighting: each next
// centroid is sampled proportionally to squared distance from the nearest
// already-chosen one.
func seedPlusPlus(vectors [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := vectors[rng.Intn(len(vectors))]
	centroids = append(centroids, append([]float64(nil), first...))

	dists := make([]float64, len(vectors))
	for len(centroids) < k {
		var total float64
		for i, v := range vectors {
			d := floats.Distance(centroids[nearestCentroid(centroids, v)], v, 2)
			dists[i] = d * d
			total += dists[i]
		}
		if total == 0 {
			// All remaining vectors coincide with a centroid; duplicate one.
			centroids = append(centroids, append([]float64(nil), vectors[0]...))
			continue
		}
		target := rng.Float64() * total
		var acc float64
		pick := len(vectors) - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), vectors[pick]...))
	}
	return centroids
}
