//go:build cgo
// +build cgo

package extractor

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions configures an ONNXExtractor.
type ONNXOptions struct {
	Dimensions int
	InputSize  int
	InputName  string
	OutputName string
	// Detector finds faces; nil treats the whole image as one aligned face.
	Detector Detector
}

func (o *ONNXOptions) applyDefaults() {
	if o.Dimensions <= 0 {
		o.Dimensions = 512
	}
	if o.InputSize <= 0 {
		o.InputSize = 112
	}
	if o.InputName == "" {
		o.InputName = "input"
	}
	if o.OutputName == "" {
		o.OutputName = "output"
	}
	if o.Detector == nil {
		o.Detector = WholeImage{MinSize: o.InputSize / 2}
	}
}

// ONNXExtractor runs an ArcFace-style recognition model with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXExtractor struct {
	session      *ort.AdvancedSession
	opts         ONNXOptions
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXExtractor loads the model at modelPath. InitializeEnvironment is called if not already done.
func NewONNXExtractor(modelPath string, opts ONNXOptions) (*ONNXExtractor, error) {
	opts.applyDefaults()
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	size := int64(opts.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.Dimensions)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXExtractor{
		session:      session,
		opts:         opts,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Extract decodes data, picks a face according to policy and returns its embedding.
func (e *ONNXExtractor) Extract(ctx context.Context, data []byte, policy Policy) ([]float32, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	boxes, err := e.opts.Detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	face, err := SelectFace(boxes, policy)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ToTensor(img, face, e.opts.InputSize, e.inputTensor.GetData())
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.opts.Dimensions)
	copy(embedding, e.outputTensor.GetData())
	NormalizeL2(embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXExtractor) Dimensions() int {
	return e.opts.Dimensions
}

// Close destroys the session and tensors.
func (e *ONNXExtractor) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
