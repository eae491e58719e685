package vector

import "math"

// InnerProduct returns the inner product of two vectors of equal length.
// For L2-normalized vectors this equals cosine similarity.
func InnerProduct(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// IsNormalized reports whether x has unit L2 norm within tol.
func IsNormalized(x []float32, tol float64) bool {
	return math.Abs(L2Norm(x)-1) <= tol
}
