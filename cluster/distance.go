package cluster

import "math"

// DistanceFunc measures dissimilarity between two embeddings.
type DistanceFunc func(a, b []float32) float64

// Euclidean is the L2 distance, accumulated in float64.
func Euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// NeighborIndex answers radius queries over a fixed set of vectors addressed
// by position.
type NeighborIndex interface {
	// Neighbors returns the positions within eps of position i, including i.
	Neighbors(i int, eps float64) []int
}

// BruteForceIndex compares every pair. Exact, which keeps the clustering
// reproducible.
type BruteForceIndex struct {
	vectors [][]float32
	dist    DistanceFunc
}

func NewBruteForceIndex(vectors [][]float32, dist DistanceFunc) *BruteForceIndex {
	if dist == nil {
		dist = Euclidean
	}
	return &BruteForceIndex{vectors: vectors, dist: dist}
}

func (b *BruteForceIndex) Neighbors(i int, eps float64) []int {
	var out []int
	for j, v := range b.vectors {
		if j == i || b.dist(b.vectors[i], v) <= eps {
			out = append(out, j)
		}
	}
	return out
}
