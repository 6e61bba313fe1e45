//go:build opencv

package detect

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"gocv.io/x/gocv"
)

const haarBuilt = true

// HaarPrimitive wraps an OpenCV cascade classifier.
type HaarPrimitive struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	Scale      float64
}

// NewHaarPrimitive loads the cascade XML at path.
func NewHaarPrimitive(path string) (*HaarPrimitive, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: haar engine needs a cascade file", ErrConfiguration)
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("%w: cannot load cascade %s", ErrConfiguration, path)
	}
	return &HaarPrimitive{classifier: classifier, Scale: 1.1}, nil
}

func (h *HaarPrimitive) Detect(img image.Image, minNeighbors int) ([]image.Rectangle, error) {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return nil, fmt.Errorf("convert region: %w", err)
	}
	defer mat.Close()

	h.mu.Lock()
	found := h.classifier.DetectMultiScaleWithParams(mat, h.Scale, minNeighbors, 0, image.Point{}, image.Point{})
	h.mu.Unlock()

	for i := range found {
		found[i] = found[i].Add(b.Min)
	}
	return found, nil
}

func (h *HaarPrimitive) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.classifier.Close()
}
