package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
)

// ErrMalformedRect is returned when a detection has a non-positive width or height
// or cannot be read as a rectangle at all.
var ErrMalformedRect = errors.New("malformed rectangle")

// Rectangle is an axis-aligned box in frame pixel coordinates, origin top-left.
// It serializes as the 4-element array [x, y, width, height].
type Rectangle struct {
	X, Y, W, H int
}

// FaceBox is the canonical, deduplicated rectangle for one face in one frame.
type FaceBox = Rectangle

// Rect builds a Rectangle from its components.
func Rect(x, y, w, h int) Rectangle {
	return Rectangle{X: x, Y: y, W: w, H: h}
}

// FromImageRect converts a min/max image.Rectangle.
func FromImageRect(r image.Rectangle) Rectangle {
	r = r.Canon()
	return Rectangle{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// ImageRect returns the min/max form used by the image packages.
func (r Rectangle) ImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Valid reports whether the rectangle has a positive area and a non-negative origin.
func (r Rectangle) Valid() bool {
	return r.W > 0 && r.H > 0 && r.X >= 0 && r.Y >= 0
}

func (r Rectangle) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlapping part of r and o (zero Rectangle if disjoint).
func (r Rectangle) Intersect(o Rectangle) Rectangle {
	in := r.ImageRect().Intersect(o.ImageRect())
	if in.Empty() {
		return Rectangle{}
	}
	return FromImageRect(in)
}

// Union returns the smallest rectangle containing both r and o.
func (r Rectangle) Union(o Rectangle) Rectangle {
	return FromImageRect(r.ImageRect().Union(o.ImageRect()))
}

// Center returns the rectangle centroid.
func (r Rectangle) Center() (float64, float64) {
	return float64(r.X) + float64(r.W)/2, float64(r.Y) + float64(r.H)/2
}

func (r Rectangle) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.X, r.Y, r.W, r.H)
}

// MarshalJSON writes [x, y, w, h].
func (r Rectangle) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X, r.Y, r.W, r.H})
}

// UnmarshalJSON accepts a bare quadruple or any shape Normalize understands,
// e.g. a singleton group [[x, y, w, h]] written by older tools.
func (r *Rectangle) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	rect, err := Normalize(v)
	if err != nil {
		return err
	}
	*r = rect
	return nil
}

// Hyperframe is one processed frame's canonical face list.
type Hyperframe struct {
	FrameIndex int         `json:"frameNumber"`
	Faces      []Rectangle `json:"faces"`
}

// EventKind labels a frame's face lifecycle.
type EventKind string

const (
	Spawn   EventKind = "spawn"
	Move    EventKind = "move"
	Despawn EventKind = "despawn"
)

// Active reports whether frames with this kind get the redaction effect.
func (k EventKind) Active() bool {
	return k == Spawn || k == Move
}

// Event annotates exactly one Hyperframe.
type Event struct {
	FrameIndex int         `json:"frameNumber"`
	Kind       EventKind   `json:"type"`
	Faces      []Rectangle `json:"faces"`
	// TrackIDs is only filled by correspondence strategies, parallel to Faces.
	TrackIDs []int `json:"tracks,omitempty"`
}

// FrameTask represents a single decoded frame handed to a detection worker.
type FrameTask struct {
	Index int
	Frame *image.RGBA
}
