//go:build !opencv

package detect

import (
	"fmt"
	"image"
)

const haarBuilt = false

// HaarPrimitive is unavailable without the opencv build tag.
type HaarPrimitive struct{}

// NewHaarPrimitive always fails: rebuild with -tags opencv, or switch the
// detector to the pigo or exec engine.
func NewHaarPrimitive(path string) (*HaarPrimitive, error) {
	return nil, fmt.Errorf("%w: haar engine requires a build with -tags opencv (cascade %s)", ErrConfiguration, path)
}

func (h *HaarPrimitive) Detect(image.Image, int) ([]image.Rectangle, error) {
	return nil, fmt.Errorf("%w: haar engine not built", ErrConfiguration)
}

func (h *HaarPrimitive) Close() error { return nil }
