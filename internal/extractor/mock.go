package extractor

import (
	"context"
	"hash/fnv"
	"image"
	"math"
)

// MockExtractor is a deterministic extractor for tests. The embedding is
// derived from a hash of the image bytes, so identical images always match.
// It does not decode images: empty input has no face, and inputs listed in
// Faces report that many faces.
type MockExtractor struct {
	dimensions int
	// Faces overrides the face count for specific inputs.
	Faces map[string]int
}

// NewMockExtractor returns a mock producing embeddings of the given dimension.
func NewMockExtractor(dimensions int) *MockExtractor {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockExtractor{dimensions: dimensions}
}

// Extract returns a unit vector derived from data.
func (e *MockExtractor) Extract(ctx context.Context, data []byte, policy Policy) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	faces := 1
	if len(data) == 0 {
		faces = 0
	}
	if n, ok := e.Faces[string(data)]; ok {
		faces = n
	}
	boxes := make([]image.Rectangle, faces)
	for i := range boxes {
		boxes[i] = image.Rect(0, 0, 1, 1)
	}
	if _, err := SelectFace(boxes, policy); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write(data)
	seed := float64(h.Sum64()%1000003) + 1
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(seed * float64(i+1)))
	}
	NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockExtractor) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockExtractor.
func (e *MockExtractor) Close() error {
	return nil
}
