package cmd

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/hyperredact/internal/detect"
	"github.com/andresmejia3/hyperredact/internal/mux"
	"github.com/andresmejia3/hyperredact/internal/render"
	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/andresmejia3/hyperredact/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// markedFrames returns n frames whose top-left red value is the frame index.
func markedFrames(n, w, h int) []*image.RGBA {
	frames := make([]*image.RGBA, n)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := uint8(40)
				if (x+y)%2 == 0 {
					v = 220
				}
				img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
			}
		}
		img.SetRGBA(0, 0, color.RGBA{R: uint8(i), A: 255})
		frames[i] = img
	}
	return frames
}

// markerScanner reports two overlapping boxes keyed on the frame marker, so the
// muxed result identifies which frame was scanned.
type markerScanner struct {
	delay func(idx int) time.Duration
	fail  int // frame index to fail on, -1 for never
	calls atomic.Int32
}

func (m *markerScanner) Scan(frame *image.RGBA) ([]types.Rectangle, error) {
	m.calls.Add(1)
	idx := int(frame.RGBAAt(0, 0).R)
	if m.delay != nil {
		time.Sleep(m.delay(idx))
	}
	if idx == m.fail {
		return nil, errors.New("primitive crashed")
	}
	return []types.Rectangle{types.Rect(idx, 2, 4, 4), types.Rect(idx+1, 2, 4, 4)}, nil
}

func TestScanFrames_Sequential(t *testing.T) {
	src := video.NewMemorySource(markedFrames(6, 32, 32), 25)
	ticks := 0

	hf, err := scanFrames(context.Background(), src, []frameScanner{&markerScanner{fail: -1}}, mux.New(0.5), render.Adjustment{}, func() { ticks++ })
	require.NoError(t, err)
	require.Equal(t, 6, hf.Len())
	assert.Equal(t, 6, ticks)

	for i, f := range hf.All() {
		assert.Equal(t, i, f.FrameIndex)
		assert.Equal(t, []types.FaceBox{types.Rect(i, 2, 5, 4)}, f.Faces, "frame %d", i)
	}
}

func TestScanFrames_ParallelKeepsOrder(t *testing.T) {
	const n = 12
	src := video.NewMemorySource(markedFrames(n, 32, 32), 25)

	// Early frames take longest so results arrive out of order.
	slow := func(idx int) time.Duration { return time.Duration(n-idx) * time.Millisecond }
	scanners := []frameScanner{
		&markerScanner{delay: slow, fail: -1},
		&markerScanner{delay: slow, fail: -1},
		&markerScanner{delay: slow, fail: -1},
	}

	hf, err := scanFrames(context.Background(), src, scanners, mux.New(0.5), render.Adjustment{}, nil)
	require.NoError(t, err)
	require.Equal(t, n, hf.Len())
	for i, f := range hf.All() {
		assert.Equal(t, i, f.FrameIndex)
		assert.Equal(t, []types.FaceBox{types.Rect(i, 2, 5, 4)}, f.Faces, "frame %d", i)
	}
	assert.NoError(t, hf.Validate(n))

	var total int32
	for _, s := range scanners {
		total += s.(*markerScanner).calls.Load()
	}
	assert.Equal(t, int32(n), total, "every frame scanned exactly once")
}

func TestScanFrames_ParallelFailure(t *testing.T) {
	src := video.NewMemorySource(markedFrames(20, 16, 16), 25)
	scanners := []frameScanner{&markerScanner{fail: 7}, &markerScanner{fail: 7}}

	_, err := scanFrames(context.Background(), src, scanners, mux.New(0.5), render.Adjustment{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 7")
}

func TestScanFrames_SequentialFailure(t *testing.T) {
	src := video.NewMemorySource(markedFrames(5, 16, 16), 25)
	_, err := scanFrames(context.Background(), src, []frameScanner{&markerScanner{fail: 2}}, mux.New(0.5), render.Adjustment{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 2")
}

func TestScanFrames_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := video.NewMemorySource(markedFrames(5, 16, 16), 25)

	_, err := scanFrames(ctx, src, []frameScanner{&markerScanner{fail: -1}}, mux.New(0.5), render.Adjustment{}, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = scanFrames(ctx, src, []frameScanner{&markerScanner{fail: -1}, &markerScanner{fail: -1}}, mux.New(0.5), render.Adjustment{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanFrames_NoScanners(t *testing.T) {
	src := video.NewMemorySource(markedFrames(1, 8, 8), 25)
	_, err := scanFrames(context.Background(), src, nil, mux.New(0.5), render.Adjustment{}, nil)
	assert.ErrorIs(t, err, detect.ErrConfiguration)
}

func TestScanFrames_EmptyVideo(t *testing.T) {
	src := video.NewMemorySource(nil, 25)
	hf, err := scanFrames(context.Background(), src, []frameScanner{&markerScanner{fail: -1}, &markerScanner{fail: -1}}, mux.New(0.5), render.Adjustment{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, hf.Len())
}

func TestScanFrames_ClipsToBounds(t *testing.T) {
	src := video.NewMemorySource(markedFrames(1, 16, 16), 25)
	m := mux.New(0.5)
	m.Bounds = types.Rect(0, 0, 3, 16)

	hf, err := scanFrames(context.Background(), src, []frameScanner{&markerScanner{fail: -1}}, m, render.Adjustment{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.FaceBox{types.Rect(0, 2, 3, 4)}, hf.All()[0].Faces)
}
