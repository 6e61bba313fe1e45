// Package mux consolidates overlapping detections from several region detectors
// into one canonical box per face.
package mux

import (
	"github.com/andresmejia3/hyperredact/internal/types"
)

// DefaultThreshold is the overlap ratio above which two boxes are the same face.
const DefaultThreshold = 0.5

// Muxer merges raw detections whose intersection covers more than Threshold of the
// smaller box. Each merged group is represented by its bounding rectangle, so a
// canonical box is never smaller than any box it absorbed.
type Muxer struct {
	Threshold float64
	// Bounds, when non-empty, clips every box to the frame before merging.
	Bounds types.Rectangle
}

// New returns a Muxer with the given threshold (DefaultThreshold when <= 0).
func New(threshold float64) *Muxer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Muxer{Threshold: threshold}
}

// Overlap returns |a ∩ b| / min(|a|, |b|), 0 when either box is empty.
func Overlap(a, b types.Rectangle) float64 {
	smaller := min(a.Area(), b.Area())
	if smaller == 0 {
		return 0
	}
	return float64(a.Intersect(b).Area()) / float64(smaller)
}

// Mux returns the canonical boxes for one frame. Output order follows the first
// member of each group in the input. No two output boxes overlap above Threshold.
func (m *Muxer) Mux(raw []types.Rectangle) []types.FaceBox {
	boxes := make([]types.Rectangle, 0, len(raw))
	for _, r := range raw {
		if m.Bounds.Area() > 0 {
			r = r.Intersect(m.Bounds)
		}
		// Malformed detections are sensor noise, not a program fault.
		if r.W <= 0 || r.H <= 0 {
			continue
		}
		boxes = append(boxes, r)
	}

	// A merged box can grow into a third box, so keep going until a full pass is clean.
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(boxes) && !merged; i++ {
			for j := i + 1; j < len(boxes); j++ {
				if Overlap(boxes[i], boxes[j]) > m.Threshold {
					boxes[i] = boxes[i].Union(boxes[j])
					boxes = append(boxes[:j], boxes[j+1:]...)
					merged = true
					break
				}
			}
		}
	}
	return boxes
}
