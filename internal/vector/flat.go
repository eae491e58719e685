package vector

import (
	"fmt"
	"sort"
	"sync"
)

// FlatStore keeps vectors in one contiguous row-major slice and scans all of them per query.
// Exact search is fine at per-tenant gallery sizes.
type FlatStore struct {
	dimensions int
	data       []float32
	count      int
	mu         sync.RWMutex
}

// NewFlatStore creates an empty flat store with the given dimension.
func NewFlatStore(dimensions int) (*FlatStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatStore{dimensions: dimensions}, nil
}

// NewFlatStoreFrom builds a store from row-major data, as written by Export.
func NewFlatStoreFrom(dimensions int, data []float32) (*FlatStore, error) {
	s, err := NewFlatStore(dimensions)
	if err != nil {
		return nil, err
	}
	if len(data)%dimensions != 0 {
		return nil, fmt.Errorf("flat data length %d is not a multiple of dimension %d", len(data), dimensions)
	}
	s.data = make([]float32, len(data))
	copy(s.data, data)
	s.count = len(data) / dimensions
	return s, nil
}

// Dimensions returns the vector dimension.
func (s *FlatStore) Dimensions() int {
	return s.dimensions
}

// Type returns the store type identifier.
func (s *FlatStore) Type() string {
	return string(StoreTypeFlat)
}

// Append adds vec at the end and returns its position.
func (s *FlatStore) Append(vec []float32) (int, error) {
	if err := CheckDimensions(vec, s.dimensions); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.count
	s.data = append(s.data, vec...)
	s.count++
	return pos, nil
}

// AppendBatch validates every vector before appending any of them.
func (s *FlatStore) AppendBatch(vecs [][]float32) ([]int, error) {
	for i, vec := range vecs {
		if err := CheckDimensions(vec, s.dimensions); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := make([]int, len(vecs))
	for i, vec := range vecs {
		s.data = append(s.data, vec...)
		positions[i] = s.count
		s.count++
	}
	return positions, nil
}

// Search returns the top-k vectors by inner product (cosine similarity for normalized vectors).
func (s *FlatStore) Search(query []float32, k int) ([]Hit, error) {
	if err := CheckDimensions(query, s.dimensions); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || s.count == 0 {
		return nil, nil
	}
	hits := make([]Hit, s.count)
	for i := 0; i < s.count; i++ {
		row := s.data[i*s.dimensions : (i+1)*s.dimensions]
		hits[i] = Hit{Position: i, Score: InnerProduct(query, row)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Vector returns a copy of the vector stored at pos.
func (s *FlatStore) Vector(pos int) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos < 0 || pos >= s.count {
		return nil, false
	}
	out := make([]float32, s.dimensions)
	copy(out, s.data[pos*s.dimensions:(pos+1)*s.dimensions])
	return out, true
}

// Count returns the number of stored vectors.
func (s *FlatStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Export returns a copy of the row-major data.
func (s *FlatStore) Export() ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float32, len(s.data))
	copy(out, s.data)
	return out, nil
}

// Close is a no-op for FlatStore.
func (s *FlatStore) Close() error {
	return nil
}
