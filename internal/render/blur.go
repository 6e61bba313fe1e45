package render

import (
	"image"
	"image/draw"

	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/andresmejia3/hyperredact/internal/video"
	"github.com/disintegration/imaging"
)

// BlurRenderer replaces each face with a repeatedly smoothed copy of itself.
type BlurRenderer struct {
	Passes int
	Sigma  float64
}

var _ Renderer = (*BlurRenderer)(nil)

func NewBlurRenderer(passes int, sigma float64) *BlurRenderer {
	if passes < 1 {
		passes = 20
	}
	if sigma <= 0 {
		sigma = 2
	}
	return &BlurRenderer{Passes: passes, Sigma: sigma}
}

func (b *BlurRenderer) Render(events []types.Event, src video.Source, sink video.Sink) error {
	return Replay(events, src, sink, b.Blur)
}

// Blur smooths region of frame in place. Pixels outside region are untouched.
func (b *BlurRenderer) Blur(frame *image.RGBA, region image.Rectangle, _ int) {
	patch := imaging.Crop(frame, region)
	for i := 0; i < b.Passes; i++ {
		patch = imaging.Blur(patch, b.Sigma)
	}
	draw.Draw(frame, region, patch, image.Point{}, draw.Src)
}
