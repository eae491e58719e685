package index

import (
	"errors"

	"github.com/hyperjump/facevault/internal/vector"
)

var (
	// ErrDimensionMismatch is returned when an embedding has the wrong length.
	ErrDimensionMismatch = vector.ErrDimensionMismatch
	// ErrBatchShape is returned when the parallel slices of a batch differ in length.
	ErrBatchShape = errors.New("batch slices have different lengths")
)

// DimensionError carries the offending and expected lengths.
type DimensionError = vector.DimensionError
