// Package extractor turns face images into L2-normalized embedding vectors.
package extractor

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrNoFaceDetected is returned when the image contains no usable face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrMultipleFacesDetected is returned when a single face is required and more were found.
	ErrMultipleFacesDetected = errors.New("multiple faces detected")
)

// Policy controls how an extractor treats ambiguous images.
type Policy struct {
	// RequireSingleFace rejects images with more than one detected face.
	// When false the largest face is used.
	RequireSingleFace bool
}

// Extractor produces face embeddings from encoded images.
type Extractor interface {
	Extract(ctx context.Context, data []byte, policy Policy) ([]float32, error)
	Dimensions() int
	Close() error
}

// Detector finds face bounding boxes in a decoded image.
type Detector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
}

// WholeImage is a Detector that treats any image of at least MinSize pixels on
// each side as one aligned face crop.
type WholeImage struct {
	MinSize int
}

// Detect returns the image bounds, or nothing if the image is too small.
func (d WholeImage) Detect(img image.Image) ([]image.Rectangle, error) {
	b := img.Bounds()
	if b.Dx() < d.MinSize || b.Dy() < d.MinSize || b.Empty() {
		return nil, nil
	}
	return []image.Rectangle{b}, nil
}

// SelectFace applies policy to the detected boxes and returns the one to embed.
func SelectFace(boxes []image.Rectangle, policy Policy) (image.Rectangle, error) {
	switch {
	case len(boxes) == 0:
		return image.Rectangle{}, ErrNoFaceDetected
	case len(boxes) > 1 && policy.RequireSingleFace:
		return image.Rectangle{}, ErrMultipleFacesDetected
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if area(b) > area(best) {
			best = b
		}
	}
	return best, nil
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
