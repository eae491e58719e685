//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import "fmt"

// FAISSStore is a stub used when the faiss build tag is not set.
// Build with -tags=faiss to enable FAISS support.
type FAISSStore struct{}

// NewFAISSStore returns an error because FAISS is not compiled in.
func NewFAISSStore(dimensions int) (*FAISSStore, error) {
	return nil, fmt.Errorf("FAISS not available: build with -tags=faiss and install FAISS library")
}

// Dimensions returns 0 without FAISS.
func (f *FAISSStore) Dimensions() int {
	return 0
}

// Append is not implemented without FAISS.
func (f *FAISSStore) Append(vec []float32) (int, error) {
	return 0, fmt.Errorf("FAISS not available")
}

// AppendBatch is not implemented without FAISS.
func (f *FAISSStore) AppendBatch(vecs [][]float32) ([]int, error) {
	return nil, fmt.Errorf("FAISS not available")
}

// Search is not implemented without FAISS.
func (f *FAISSStore) Search(query []float32, k int) ([]Hit, error) {
	return nil, fmt.Errorf("FAISS not available")
}

// Count returns 0 without FAISS.
func (f *FAISSStore) Count() int {
	return 0
}

// Export fails without FAISS.
func (f *FAISSStore) Export() ([]float32, error) {
	return nil, fmt.Errorf("FAISS not available")
}

// Type returns the store type identifier.
func (f *FAISSStore) Type() string {
	return string(StoreTypeFAISS)
}

// Close is a no-op without FAISS.
func (f *FAISSStore) Close() error {
	return nil
}
