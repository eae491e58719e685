package vector

import (
	"errors"
	"testing"
)

func TestFlatStore_AppendSearch(t *testing.T) {
	s, err := NewFlatStore(3)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	for i, v := range vecs {
		pos, err := s.Append(v)
		if err != nil {
			t.Fatal(err)
		}
		if pos != i {
			t.Errorf("Append position = %d, want %d", pos, i)
		}
	}
	if s.Count() != 3 {
		t.Errorf("Count=%d", s.Count())
	}

	hits, err := s.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Position != 0 || hits[1].Position != 1 {
		t.Errorf("unexpected order: %+v", hits)
	}
}

func TestFlatStore_TiesBreakByPosition(t *testing.T) {
	s, _ := NewFlatStore(2)
	for i := 0; i < 4; i++ {
		if _, err := s.Append([]float32{0, 1}); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := s.Search([]float32{0, 1}, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i, h := range hits {
		if h.Position != i {
			t.Errorf("hit %d has position %d, want %d", i, h.Position, i)
		}
	}
}

func TestFlatStore_DimensionMismatch(t *testing.T) {
	s, _ := NewFlatStore(3)
	_, err := s.Append([]float32{1, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Append: got %v, want ErrDimensionMismatch", err)
	}
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) || dimErr.Got != 2 || dimErr.Want != 3 {
		t.Errorf("DimensionError = %+v", dimErr)
	}
	if _, err := s.Search([]float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search: got %v, want ErrDimensionMismatch", err)
	}
}

func TestFlatStore_AppendBatchAllOrNothing(t *testing.T) {
	s, _ := NewFlatStore(2)
	_, _ = s.Append([]float32{1, 0})

	_, err := s.AppendBatch([][]float32{{1, 0}, {0, 1, 0}, {0, 1}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension error, got %v", err)
	}
	if s.Count() != 1 {
		t.Errorf("Count after rejected batch = %d, want 1", s.Count())
	}

	positions, err := s.AppendBatch([][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 2 || positions[0] != 1 || positions[1] != 2 {
		t.Errorf("positions = %v, want [1 2]", positions)
	}
}

func TestFlatStore_SearchEdgeCases(t *testing.T) {
	s, _ := NewFlatStore(2)
	hits, err := s.Search([]float32{1, 0}, 5)
	if err != nil || len(hits) != 0 {
		t.Errorf("empty store: hits=%v err=%v", hits, err)
	}
	_, _ = s.Append([]float32{1, 0})
	hits, _ = s.Search([]float32{1, 0}, 0)
	if len(hits) != 0 {
		t.Errorf("k=0 should return nothing, got %v", hits)
	}
	hits, _ = s.Search([]float32{1, 0}, 10)
	if len(hits) != 1 {
		t.Errorf("k > count should clamp, got %d hits", len(hits))
	}
}

func TestFlatStore_ExportRoundTrip(t *testing.T) {
	s, _ := NewFlatStore(2)
	_, _ = s.AppendBatch([][]float32{{1, 0}, {0.6, 0.8}})
	data, err := s.Export()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := NewFlatStoreFrom(2, data)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Count() != 2 {
		t.Fatalf("Count=%d", restored.Count())
	}
	v, ok := restored.Vector(1)
	if !ok || v[0] != 0.6 || v[1] != 0.8 {
		t.Errorf("Vector(1) = %v, %v", v, ok)
	}
	if _, err := NewFlatStoreFrom(2, []float32{1, 2, 3}); err == nil {
		t.Error("expected error for ragged data")
	}
}
