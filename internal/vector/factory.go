package vector

import "fmt"

// StoreType selects a Store implementation.
type StoreType string

const (
	// StoreTypeFlat is the pure-Go brute-force store.
	StoreTypeFlat StoreType = "flat"
	// StoreTypeFAISS wraps a FAISS IndexFlatIP. Requires -tags=faiss and the FAISS C library.
	StoreTypeFAISS StoreType = "faiss"
)

// NewStore creates an empty store of the given type. "" selects flat.
func NewStore(storeType string, dimensions int) (Store, error) {
	switch StoreType(storeType) {
	case StoreTypeFlat, "":
		return NewFlatStore(dimensions)
	case StoreTypeFAISS:
		return NewFAISSStore(dimensions)
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: flat, faiss)", storeType)
	}
}

// NewStoreFrom creates a store of the given type pre-loaded with row-major data.
func NewStoreFrom(storeType string, dimensions int, data []float32) (Store, error) {
	if StoreType(storeType) == StoreTypeFlat || storeType == "" {
		return NewFlatStoreFrom(dimensions, data)
	}
	if len(data)%dimensions != 0 {
		return nil, fmt.Errorf("flat data length %d is not a multiple of dimension %d", len(data), dimensions)
	}
	s, err := NewStore(storeType, dimensions)
	if err != nil {
		return nil, err
	}
	n := len(data) / dimensions
	if n == 0 {
		return s, nil
	}
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = data[i*dimensions : (i+1)*dimensions]
	}
	if _, err := s.AppendBatch(rows); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	s, err := NewFAISSStore(1)
	if err != nil {
		return false
	}
	_ = s.Close()
	return true
}
