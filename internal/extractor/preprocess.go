package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode decodes a JPEG, PNG or WebP image.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrNoFaceDetected
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ToTensor crops face out of img, scales it to size x size and writes it
// into dst as planar RGB (CHW) with each channel mapped to [-1, 1].
// dst must hold 3*size*size values.
func ToTensor(img image.Image, face image.Rectangle, size int, dst []float32) {
	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, face, draw.Src, nil)

	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := scaled.PixOffset(x, y)
			p := y*size + x
			dst[p] = (float32(scaled.Pix[i]) - 127.5) / 127.5
			dst[plane+p] = (float32(scaled.Pix[i+1]) - 127.5) / 127.5
			dst[2*plane+p] = (float32(scaled.Pix[i+2]) - 127.5) / 127.5
		}
	}
}

// NormalizeL2 scales x in place to unit length. A zero vector is left unchanged.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}
