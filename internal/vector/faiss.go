//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"
)

// FAISSStore wraps a FAISS IndexFlatIP. FAISS positions are the store positions,
// since IndexFlat assigns sequential ids and never removes.
type FAISSStore struct {
	index      *C.FaissIndexFlatIP
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSStore creates an inner-product FAISS store with the given dimension.
func NewFAISSStore(dimensions int) (*FAISSStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var index *C.FaissIndexFlatIP
	if ret := C.faiss_IndexFlatIP_new_with(&index, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSStore{index: index, dimensions: dimensions}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Dimensions returns the vector dimension.
func (f *FAISSStore) Dimensions() int {
	return f.dimensions
}

// Type returns the store type identifier.
func (f *FAISSStore) Type() string {
	return string(StoreTypeFAISS)
}

// Append adds one vector.
func (f *FAISSStore) Append(vec []float32) (int, error) {
	positions, err := f.AppendBatch([][]float32{vec})
	if err != nil {
		return 0, err
	}
	return positions[0], nil
}

// AppendBatch flattens and validates all vectors before a single faiss_Index_add call.
func (f *FAISSStore) AppendBatch(vecs [][]float32) ([]int, error) {
	if len(vecs) == 0 {
		return []int{}, nil
	}
	flat := make([]float32, len(vecs)*f.dimensions)
	for i, vec := range vecs {
		if err := CheckDimensions(vec, f.dimensions); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	start := int(C.faiss_Index_ntotal(f.index))
	ret := C.faiss_Index_add(f.index, C.idx_t(len(vecs)), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return nil, fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	positions := make([]int, len(vecs))
	for i := range positions {
		positions[i] = start + i
	}
	return positions, nil
}

// Search runs faiss_Index_search and re-sorts so equal scores are ordered by position.
func (f *FAISSStore) Search(query []float32, k int) ([]Hit, error) {
	if err := CheckDimensions(query, f.dimensions); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	ntotal := int(C.faiss_Index_ntotal(f.index))
	if ntotal == 0 {
		return nil, nil
	}
	if k > ntotal {
		k = ntotal
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		hits = append(hits, Hit{Position: int(labels[i]), Score: distances[i]})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	return hits, nil
}

// Count returns faiss ntotal.
func (f *FAISSStore) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(C.faiss_Index_ntotal(f.index))
}

// Export reconstructs every stored vector.
func (f *FAISSStore) Export() ([]float32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := int(C.faiss_Index_ntotal(f.index))
	if n == 0 {
		return []float32{}, nil
	}
	out := make([]float32, n*f.dimensions)
	if ret := C.faiss_Index_reconstruct_n(f.index, 0, C.idx_t(n), (*C.float)(unsafe.Pointer(&out[0]))); ret != 0 {
		return nil, fmt.Errorf("faiss reconstruct_n: %s", faissLastError())
	}
	return out, nil
}

// Close frees the FAISS index.
func (f *FAISSStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
