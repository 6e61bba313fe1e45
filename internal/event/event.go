// Package event turns the per-frame face record into the lifecycle stream the
// renderers replay.
package event

import (
	"github.com/andresmejia3/hyperredact/internal/types"
)

// Generator produces exactly one Event per Hyperframe, in the same order.
type Generator interface {
	Generate(frames []types.Hyperframe) []types.Event
}

// Presence is the default generator. It only tracks whether any face is on
// screen: SPAWN on the first frame with faces after an empty one, MOVE while
// faces stay present, DESPAWN on every empty frame.
type Presence struct{}

var _ Generator = Presence{}

// Generate runs the two-state machine over frames. It is a pure function.
func (Presence) Generate(frames []types.Hyperframe) []types.Event {
	events := make([]types.Event, 0, len(frames))
	present := false

	for _, f := range frames {
		ev := types.Event{FrameIndex: f.FrameIndex, Faces: copyFaces(f.Faces)}
		switch {
		case len(f.Faces) == 0:
			ev.Kind = types.Despawn
			present = false
		case present:
			ev.Kind = types.Move
		default:
			ev.Kind = types.Spawn
			present = true
		}
		events = append(events, ev)
	}
	return events
}

// Generate is shorthand for Presence{}.Generate.
func Generate(frames []types.Hyperframe) []types.Event {
	return Presence{}.Generate(frames)
}

func copyFaces(faces []types.FaceBox) []types.FaceBox {
	out := make([]types.FaceBox, len(faces))
	copy(out, faces)
	return out
}
