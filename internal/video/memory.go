package video

import (
	"errors"
	"image"
	"image/draw"
)

// MemorySource replays a fixed list of frames. Each Read hands out a fresh copy
// so callers may draw on it.
type MemorySource struct {
	Frames []*image.RGBA
	FPS    float64
	pos    int
}

var _ Source = (*MemorySource)(nil)

func NewMemorySource(frames []*image.RGBA, fps float64) *MemorySource {
	return &MemorySource{Frames: frames, FPS: fps}
}

func (m *MemorySource) Read() (*image.RGBA, bool) {
	if m.pos >= len(m.Frames) {
		return nil, false
	}
	src := m.Frames[m.pos]
	m.pos++
	return CloneRGBA(src), true
}

func (m *MemorySource) Rewind() error {
	m.pos = 0
	return nil
}

func (m *MemorySource) Metadata() Metadata {
	meta := Metadata{FPS: m.FPS, FrameCount: len(m.Frames), FourCC: "raw "}
	if len(m.Frames) > 0 {
		b := m.Frames[0].Bounds()
		meta.Width, meta.Height = b.Dx(), b.Dy()
	}
	return meta
}

// MemorySink collects written frames.
type MemorySink struct {
	Frames   []*image.RGBA
	Released bool
}

var _ Sink = (*MemorySink)(nil)

func (m *MemorySink) Write(frame *image.RGBA) error {
	if m.Released {
		return errors.New("write after release")
	}
	m.Frames = append(m.Frames, CloneRGBA(frame))
	return nil
}

func (m *MemorySink) Release() error {
	m.Released = true
	return nil
}

// CloneRGBA returns a deep copy of img with its bounds moved to the origin.
func CloneRGBA(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
