// Package render replays an event stream against a rewound source and writes
// the redacted frames to a sink.
package render

import (
	"fmt"
	"image"

	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/andresmejia3/hyperredact/internal/video"
)

// Renderer applies one redaction effect.
type Renderer interface {
	Render(events []types.Event, src video.Source, sink video.Sink) error
}

// Effect redacts one face region of frame in place. region is already
// clipped to the frame. track is the face's tracker ID, or 0 when the event
// stream carries none.
type Effect func(frame *image.RGBA, region image.Rectangle, track int)

// Replay rewinds src and reads exactly one frame per event. Frames whose
// event is active get effect applied to every face; the rest pass through.
// The sink is released once every event has been written. Running out of
// source frames first is fatal and leaves the sink unreleased.
func Replay(events []types.Event, src video.Source, sink video.Sink, effect Effect) error {
	if err := src.Rewind(); err != nil {
		return fmt.Errorf("rewind source: %w", err)
	}

	for i, ev := range events {
		frame, ok := src.Read()
		if !ok {
			return fmt.Errorf("%w: event %d (frame %d) of %d has no source frame", video.ErrSourceExhausted, i, ev.FrameIndex, len(events))
		}
		if ev.Kind.Active() {
			for j, face := range ev.Faces {
				region := face.ImageRect().Intersect(frame.Bounds())
				if region.Empty() {
					continue
				}
				effect(frame, region, trackID(ev, j))
			}
		}
		if err := sink.Write(frame); err != nil {
			return fmt.Errorf("write frame %d: %w", ev.FrameIndex, err)
		}
	}
	return sink.Release()
}

// trackID returns the ID of the j-th face, 0 when the event is untracked.
func trackID(ev types.Event, j int) int {
	if len(ev.TrackIDs) != len(ev.Faces) {
		return 0
	}
	return ev.TrackIDs[j]
}
