// Package vector provides similarity and encoding helpers for normalized embeddings.
package vector

import (
	"fmt"
	"math"

	"github.com/hyperjump/kioku/internal/models"
)

// Cosine returns the cosine similarity of two L2-normalized vectors, clamped
// to [0,1]. Vectors of differing or zero length are a contract violation and
// return ErrDimensionMismatch; the mismatch is never silently coerced.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("cosine: %d vs %d: %w", len(a), len(b), models.ErrDimensionMismatch)
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot < 0 {
		return 0, nil
	}
	if dot > 1 {
		return 1, nil
	}
	return dot, nil
}

// Centroid returns the element-wise mean of the vectors. All vectors must
// share the same dimension; returns nil for an empty input.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	centroid := make([]float32, dim)
	for _, v := range vectors {
		for i := range v {
			centroid[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range centroid {
		centroid[i] /= n
	}
	return centroid
}

// IsWellFormed reports whether v has the expected dimension and contains no
// NaN or Inf components. dim <= 0 skips the dimension check.
func IsWellFormed(v []float32, dim int) bool {
	if len(v) == 0 {
		return false
	}
	if dim > 0 && len(v) != dim {
		return false
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= norm
	}
}
