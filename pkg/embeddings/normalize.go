// Package embeddings provides vector utilities for embeddings: L2 normalization,
// unit-norm checks and a deterministic offline generator.
package embeddings

import (
	"errors"
	"math"
)

// UnitNormTolerance is the largest accepted deviation of a stored vector's norm from 1.
const UnitNormTolerance = 1e-4

// ErrZeroVector is returned when a vector has no magnitude and cannot be normalized.
var ErrZeroVector = errors.New("embeddings: vector has zero norm")

// Norm returns the Euclidean length of vector, accumulated in float64.
func Norm(vector []float32) float64 {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	return math.Sqrt(sumSquares)
}

// NormalizeL2 scales vector in place to length 1.
// Returns ErrZeroVector for empty, all-zero or non-finite vectors, leaving the slice untouched.
func NormalizeL2(vector []float32) error {
	magnitude := Norm(vector)
	if magnitude == 0 || math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return ErrZeroVector
	}

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}

	return nil
}

// IsUnit reports whether vector has length 1 within UnitNormTolerance.
func IsUnit(vector []float32) bool {
	if len(vector) == 0 {
		return false
	}

	return math.Abs(Norm(vector)-1) <= UnitNormTolerance
}
