// Package dist implements feature standardization, pairwise distances
// and the silhouette clustering criterion. The distance matrix is used
// only for scoring candidate clusterings, never for model fitting.
package dist

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// Standardize returns a copy of X with every column centered to zero
// mean and scaled to unit variance. An all-constant column has zero
// scale and is left at zero after centering.
func Standardize(X *mat64.Dense) *mat64.Dense {
	rows, cols := X.Dims()
	Z := mat64.NewDense(rows, cols, nil)

	for j := 0; j < cols; j++ {
		mean := 0.0
		for i := 0; i < rows; i++ {
			mean += X.At(i, j)
		}
		mean /= float64(rows)

		variance := 0.0
		for i := 0; i < rows; i++ {
			d := X.At(i, j) - mean
			variance += d * d
		}
		variance /= float64(rows)
		scale := math.Sqrt(variance)

		for i := 0; i < rows; i++ {
			v := X.At(i, j) - mean
			if scale > 0 {
				v /= scale
			} else {
				v = 0
			}
			Z.Set(i, j, v)
		}
	}
	return Z
}

// Pairwise computes the full Euclidean distance matrix over the rows of
// X. This is O(n^2) in memory and compute and is intended to be done
// once per run and shared across every candidate cluster count.
func Pairwise(X *mat64.Dense) *mat64.SymDense {
	rows, cols := X.Dims()
	D := mat64.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		ri := X.RawRowView(i)
		for j := i + 1; j < rows; j++ {
			rj := X.RawRowView(j)
			sum := 0.0
			for k := 0; k < cols; k++ {
				d := ri[k] - rj[k]
				sum += d * d
			}
			D.SetSym(i, j, math.Sqrt(sum))
		}
	}
	return D
}

// Silhouette returns the mean silhouette coefficient of the labeling
// against a precomputed distance matrix. Rows in singleton clusters
// contribute zero. The number of distinct labels must be at least 2 and
// at most n-1.
func Silhouette(D *mat64.SymDense, labels []int) (float64, error) {
	n := D.Symmetric()
	if len(labels) != n {
		return 0, fmt.Errorf("%d labels for a %dx%d distance matrix", len(labels), n, n)
	}

	sizes := make(map[int]int)
	for _, l := range labels {
		sizes[l]++
	}
	if len(sizes) < 2 || len(sizes) > n-1 {
		return 0, fmt.Errorf("silhouette requires 2 to n-1 clusters, got %d", len(sizes))
	}

	total := 0.0
	sums := make(map[int]float64, len(sizes))
	for i := 0; i < n; i++ {
		own := labels[i]
		if sizes[own] == 1 {
			continue
		}

		for l := range sums {
			delete(sums, l)
		}
		for j := 0; j < n; j++ {
			if j != i {
				sums[labels[j]] += D.At(i, j)
			}
		}

		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for l, s := range sums {
			if l == own {
				continue
			}
			if m := s / float64(sizes[l]); m < b {
				b = m
			}
		}

		if a != b {
			total += (b - a) / math.Max(a, b)
		}
	}
	return total / float64(n), nil
}
