// Package vector provides fixed-dimension vector stores with exact inner-product search.
package vector

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a vector's length differs from the store dimension.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// DimensionError reports the offending length. It matches ErrDimensionMismatch with errors.Is.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Got, e.Want)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// CheckDimensions returns a *DimensionError if vec does not have exactly dim components.
func CheckDimensions(vec []float32, dim int) error {
	if len(vec) != dim {
		return &DimensionError{Got: len(vec), Want: dim}
	}
	return nil
}

// Store holds vectors at contiguous positions and answers top-k inner-product queries.
// Stores never delete; positions are assigned in append order starting at 0.
type Store interface {
	Dimensions() int
	// Append adds one vector and returns its position (the prior count).
	Append(vec []float32) (int, error)
	// AppendBatch adds all vectors or none of them.
	AppendBatch(vecs [][]float32) ([]int, error)
	// Search returns up to k hits by descending score; ties go to the lower position.
	Search(query []float32, k int) ([]Hit, error)
	Count() int
	// Export returns a row-major copy of all stored vectors.
	Export() ([]float32, error)
	Type() string
	Close() error
}

// Hit is a single search result from a Store.
type Hit struct {
	Position int
	Score    float32
}
