package utils

import (
	"math"
)

// CosineSimilarity calculates the cosine similarity between two float32 vectors.
// Returns 0 if vectors have different lengths, are empty, or either has zero magnitude.
// The result is clamped to [-1, 1]; rounding can otherwise push
// self-similarity slightly above 1.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return ClampUnit(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// ClampUnit clamps x to [-1, 1]. NaN maps to 0.
func ClampUnit(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x > 1:
		return 1
	case x < -1:
		return -1
	}
	return x
}

// MaskedMean averages the rows of states whose mask entry is non-zero.
// It returns a zero vector of width dim when no row is selected.
func MaskedMean(states [][]float32, mask []int, dim int) []float32 {
	out := make([]float32, dim)
	var n int
	for i, row := range states {
		if i >= len(mask) || mask[i] == 0 {
			continue
		}
		for j := 0; j < dim && j < len(row); j++ {
			out[j] += row[j]
		}
		n++
	}
	if n == 0 {
		return out
	}
	inv := 1 / float32(n)
	for j := range out {
		out[j] *= inv
	}
	return out
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
