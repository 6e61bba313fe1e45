package event

import (
	"math"

	"github.com/andresmejia3/hyperredact/internal/types"
)

// CentroidTracker labels frames exactly like Presence but also assigns each face a
// track ID by greedy nearest-centroid matching against the previous frame.
// A face further than MaxDistance from every previous face starts a new track.
type CentroidTracker struct {
	// MaxDistance is in pixels; <= 0 disables the cut-off.
	MaxDistance float64
}

var _ Generator = CentroidTracker{}

func (c CentroidTracker) Generate(frames []types.Hyperframe) []types.Event {
	events := Presence{}.Generate(frames)

	var prevFaces []types.FaceBox
	var prevIDs []int
	nextID := 1

	for i := range events {
		faces := events[i].Faces
		ids := make([]int, len(faces))
		taken := make([]bool, len(prevFaces))

		for fi, face := range faces {
			best, bestDist := -1, math.Inf(1)
			for pi, prev := range prevFaces {
				if taken[pi] {
					continue
				}
				d := centroidDistance(face, prev)
				if c.MaxDistance > 0 && d > c.MaxDistance {
					continue
				}
				if d < bestDist {
					best, bestDist = pi, d
				}
			}
			if best >= 0 {
				taken[best] = true
				ids[fi] = prevIDs[best]
			} else {
				ids[fi] = nextID
				nextID++
			}
		}

		events[i].TrackIDs = ids
		prevFaces, prevIDs = faces, ids
	}
	return events
}

func centroidDistance(a, b types.FaceBox) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}
