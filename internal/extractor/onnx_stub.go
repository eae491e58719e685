//go:build !cgo
// +build !cgo

package extractor

import (
	"context"
	"errors"
)

// ONNXOptions configures an ONNXExtractor.
type ONNXOptions struct {
	Dimensions int
	InputSize  int
	InputName  string
	OutputName string
	Detector   Detector
}

// ONNXExtractor stub type when built without CGO (see onnx.go for real implementation).
type ONNXExtractor struct{}

// NewONNXExtractor returns an error when built without CGO (ONNX not available).
func NewONNXExtractor(_ string, _ ONNXOptions) (*ONNXExtractor, error) {
	return nil, errors.New("ONNX extractor requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// Extract is not available without CGO.
func (e *ONNXExtractor) Extract(context.Context, []byte, Policy) ([]float32, error) {
	return nil, errors.New("ONNX extractor requires CGO")
}

// Dimensions returns 0 without CGO.
func (e *ONNXExtractor) Dimensions() int {
	return 0
}

// Close is a no-op without CGO.
func (e *ONNXExtractor) Close() error {
	return nil
}
