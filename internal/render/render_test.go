package render

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/andresmejia3/hyperredact/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkerboard(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(20)
			if (x+y)%2 == 0 {
				v = 235
			}
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// variance of the red channel inside r.
func variance(img *image.RGBA, r image.Rectangle) float64 {
	var sum, sq float64
	n := float64(r.Dx() * r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := float64(img.RGBAAt(x, y).R)
			sum += v
			sq += v * v
		}
	}
	mean := sum / n
	return sq/n - mean*mean
}

func TestBlurRenderer_FaceRegionOnly(t *testing.T) {
	in := checkerboard(64, 48)
	src := video.NewMemorySource([]*image.RGBA{in}, 25)
	sink := &video.MemorySink{}
	face := types.Rect(10, 12, 20, 16)

	events := []types.Event{{FrameIndex: 0, Kind: types.Spawn, Faces: []types.FaceBox{face}}}
	require.NoError(t, NewBlurRenderer(20, 2).Render(events, src, sink))
	require.Len(t, sink.Frames, 1)
	assert.True(t, sink.Released)

	out := sink.Frames[0]
	region := face.ImageRect()
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			if image.Pt(x, y).In(region) {
				continue
			}
			if out.RGBAAt(x, y) != in.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) outside the face changed", x, y)
			}
		}
	}
	assert.Less(t, variance(out, region), variance(in, region)/10)
}

func TestReplay_SourceExhausted(t *testing.T) {
	frames := []*image.RGBA{solid(8, 8, color.RGBA{1, 2, 3, 255}), solid(8, 8, color.RGBA{4, 5, 6, 255})}
	src := video.NewMemorySource(frames, 25)
	sink := &video.MemorySink{}
	events := []types.Event{
		{FrameIndex: 0, Kind: types.Despawn},
		{FrameIndex: 1, Kind: types.Despawn},
		{FrameIndex: 2, Kind: types.Despawn},
	}

	err := NewBlurRenderer(1, 1).Render(events, src, sink)
	require.Error(t, err)
	assert.True(t, errors.Is(err, video.ErrSourceExhausted))
	assert.Len(t, sink.Frames, 2)
	assert.False(t, sink.Released)
}

func TestReplay_RewindsAndPreservesOrder(t *testing.T) {
	var frames []*image.RGBA
	for i := 0; i < 4; i++ {
		frames = append(frames, solid(4, 4, color.RGBA{uint8(i * 40), 0, 0, 255}))
	}
	src := video.NewMemorySource(frames, 25)
	// Simulate a detection pass that consumed the source.
	for {
		if _, ok := src.Read(); !ok {
			break
		}
	}

	events := []types.Event{
		{FrameIndex: 0, Kind: types.Despawn},
		{FrameIndex: 1, Kind: types.Spawn, Faces: []types.FaceBox{}},
		{FrameIndex: 2, Kind: types.Move, Faces: nil},
		{FrameIndex: 3, Kind: types.Despawn},
	}
	sink := &video.MemorySink{}
	require.NoError(t, NewBlurRenderer(3, 2).Render(events, src, sink))
	require.Len(t, sink.Frames, 4)
	for i, f := range sink.Frames {
		assert.Equal(t, frames[i].Pix, f.Pix, "frame %d", i)
	}
}

func TestReplay_FaceOutsideFrame(t *testing.T) {
	in := checkerboard(16, 16)
	src := video.NewMemorySource([]*image.RGBA{in}, 25)
	sink := &video.MemorySink{}
	events := []types.Event{{Kind: types.Spawn, Faces: []types.FaceBox{types.Rect(40, 40, 10, 10)}}}

	require.NoError(t, NewBlurRenderer(5, 2).Render(events, src, sink))
	assert.Equal(t, in.Pix, sink.Frames[0].Pix)
}

func TestReplay_ExtraSourceFramesIgnored(t *testing.T) {
	frames := []*image.RGBA{solid(4, 4, color.RGBA{A: 255}), solid(4, 4, color.RGBA{A: 255})}
	sink := &video.MemorySink{}
	require.NoError(t, NewBlurRenderer(1, 1).Render([]types.Event{{Kind: types.Despawn}}, video.NewMemorySource(frames, 25), sink))
	assert.Len(t, sink.Frames, 1)
	assert.True(t, sink.Released)
}

var skinTone = color.RGBA{224, 172, 105, 255}

func TestBoxRenderer_Gated(t *testing.T) {
	face := types.Rect(10, 10, 20, 20)
	events := []types.Event{
		{FrameIndex: 0, Kind: types.Spawn, Faces: []types.FaceBox{face}},
		{FrameIndex: 1, Kind: types.Move, Faces: []types.FaceBox{face}},
	}
	skinFrame := solid(48, 48, skinTone)
	grayFrame := solid(48, 48, color.RGBA{128, 128, 128, 255})
	src := video.NewMemorySource([]*image.RGBA{skinFrame, grayFrame}, 25)
	sink := &video.MemorySink{}

	r := NewBoxRenderer(nil, 1, SkinPredicate{MinFraction: 0.3})
	require.NoError(t, r.Render(events, src, sink))
	require.Len(t, sink.Frames, 2)
	assert.True(t, sink.Released)

	boxed := sink.Frames[0]
	for _, p := range []image.Point{{10, 20}, {29, 20}, {20, 10}, {20, 29}} {
		c := boxed.RGBAAt(p.X, p.Y)
		assert.Greater(t, int(c.B), 200, "border pixel %v = %v", p, c)
		assert.Less(t, int(c.R), 150, "border pixel %v = %v", p, c)
	}
	assert.Equal(t, skinTone, boxed.RGBAAt(20, 20), "interior must be untouched")
	assert.Equal(t, skinTone, boxed.RGBAAt(5, 5), "outside must be untouched")

	assert.Equal(t, grayFrame.Pix, sink.Frames[1].Pix, "implausible region must not be boxed")
}

func TestBoxRenderer_NoGate(t *testing.T) {
	in := solid(20, 20, color.RGBA{128, 128, 128, 255})
	sink := &video.MemorySink{}
	events := []types.Event{{Kind: types.Spawn, Faces: []types.FaceBox{types.Rect(2, 2, 10, 10)}}}
	require.NoError(t, NewBoxRenderer(color.RGBA{255, 0, 0, 255}, 1, nil).Render(events, video.NewMemorySource([]*image.RGBA{in}, 25), sink))
	assert.Greater(t, int(sink.Frames[0].RGBAAt(2, 6).R), 200)
}

func TestReplay_PassesTrackIDs(t *testing.T) {
	frames := []*image.RGBA{solid(32, 32, color.RGBA{A: 255}), solid(32, 32, color.RGBA{A: 255})}
	events := []types.Event{
		{FrameIndex: 0, Kind: types.Spawn, Faces: []types.FaceBox{types.Rect(0, 0, 4, 4), types.Rect(10, 10, 4, 4)}, TrackIDs: []int{3, 5}},
		{FrameIndex: 1, Kind: types.Move, Faces: []types.FaceBox{types.Rect(0, 0, 4, 4)}},
	}
	var got []int
	effect := func(_ *image.RGBA, _ image.Rectangle, track int) { got = append(got, track) }

	require.NoError(t, Replay(events, video.NewMemorySource(frames, 25), &video.MemorySink{}, effect))
	assert.Equal(t, []int{3, 5, 0}, got)
}

// redPixels counts strongly red pixels inside r.
func redPixels(img *image.RGBA, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if c := img.RGBAAt(x, y); c.R > 200 && c.G < 80 {
				n++
			}
		}
	}
	return n
}

func TestBoxRenderer_Labels(t *testing.T) {
	face := types.Rect(10, 30, 20, 20)
	above := image.Rect(10, 12, 40, 29)
	events := []types.Event{{Kind: types.Spawn, Faces: []types.FaceBox{face}, TrackIDs: []int{7}}}
	red := color.RGBA{255, 0, 0, 255}

	render := func(labels bool) *image.RGBA {
		r := NewBoxRenderer(red, 1, nil)
		r.Labels = labels
		sink := &video.MemorySink{}
		src := video.NewMemorySource([]*image.RGBA{solid(64, 64, color.RGBA{40, 40, 40, 255})}, 25)
		require.NoError(t, r.Render(events, src, sink))
		return sink.Frames[0]
	}

	assert.Zero(t, redPixels(render(false), above), "no label without Labels")
	assert.Greater(t, redPixels(render(true), above), 5, "label drawn above the box")

	untracked := []types.Event{{Kind: types.Spawn, Faces: []types.FaceBox{face}}}
	r := NewBoxRenderer(red, 1, nil)
	r.Labels = true
	sink := &video.MemorySink{}
	require.NoError(t, r.Render(untracked, video.NewMemorySource([]*image.RGBA{solid(64, 64, color.RGBA{40, 40, 40, 255})}, 25), sink))
	assert.Zero(t, redPixels(sink.Frames[0], above), "untracked faces carry no label")
}

func TestSkinPredicate(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want bool
	}{
		{"skin", solid(8, 8, skinTone), true},
		{"gray", solid(8, 8, color.RGBA{128, 128, 128, 255}), false},
		{"blue", solid(8, 8, color.RGBA{100, 100, 255, 255}), false},
		{"transparent", solid(8, 8, color.RGBA{}), false},
		{"empty", image.NewRGBA(image.Rectangle{}), false},
	}
	p := SkinPredicate{MinFraction: 0.3}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Plausible(tt.img))
		})
	}

	// A quarter skin is below the threshold, half is above.
	mixed := solid(8, 8, color.RGBA{128, 128, 128, 255})
	for y := 0; y < 2; y++ {
		for x := 0; x < 8; x++ {
			mixed.SetRGBA(x, y, skinTone)
		}
	}
	assert.False(t, p.Plausible(mixed))
	for y := 2; y < 4; y++ {
		for x := 0; x < 8; x++ {
			mixed.SetRGBA(x, y, skinTone)
		}
	}
	assert.True(t, p.Plausible(mixed))
}

func TestAdjustment(t *testing.T) {
	in := checkerboard(8, 8)

	same := Adjustment{Gamma: 1}.Apply(in)
	assert.Equal(t, in.Pix, same.Pix)
	same.Pix[0] = 0
	assert.NotEqual(t, in.Pix[0], same.Pix[0], "Apply must copy")

	flat := Adjustment{Contrast: -80}.Apply(in)
	assert.Less(t, variance(flat, flat.Bounds()), variance(in, in.Bounds()))

	bright := Adjustment{Brightness: 30}.Apply(solid(4, 4, color.RGBA{100, 100, 100, 255}))
	assert.Greater(t, int(bright.RGBAAt(0, 0).R), 100)
}

func TestAdjustRenderer(t *testing.T) {
	frames := []*image.RGBA{checkerboard(8, 8), checkerboard(8, 8), checkerboard(8, 8)}
	src := video.NewMemorySource(frames, 25)
	src.Read()
	sink := &video.MemorySink{}

	n, err := (&AdjustRenderer{Adjustment: Adjustment{Contrast: 20}}).Render(src, sink)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, sink.Frames, 3)
	assert.True(t, sink.Released)
}
