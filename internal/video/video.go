// Package video wraps ffmpeg/ffprobe as a resettable frame source and an
// ordered frame sink.
package video

import (
	"errors"
	"fmt"
	"image"
)

// ErrSourceExhausted means a source ran out of frames while a caller still
// expected more. Running out during the detection pass is the normal end of
// the loop and is not reported with this error.
var ErrSourceExhausted = errors.New("video source exhausted")

// Metadata describes a stream; it is only used to size sinks and to resolve
// detector regions.
type Metadata struct {
	FPS        float64
	Width      int
	Height     int
	FrameCount int    // 0 when the container does not say
	FourCC     string // codec tag reported by the container, e.g. "avc1"
}

// Bounds returns the full-frame rectangle.
func (m Metadata) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m Metadata) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid video dimensions %dx%d", m.Width, m.Height)
	}
	if m.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %v", m.FPS)
	}
	return nil
}

// Source is a sequential, rewindable frame reader.
type Source interface {
	// Read returns the next frame. ok is false at end of stream or on a read
	// failure; both end the stream. The returned frame is only valid until the
	// next Read.
	Read() (frame *image.RGBA, ok bool)
	// Rewind positions the source back at its first frame.
	Rewind() error
	Metadata() Metadata
}

// Sink accepts frames of a fixed size in order.
type Sink interface {
	Write(frame *image.RGBA) error
	// Release finalizes the output. No writes are allowed afterwards.
	Release() error
}
