package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/andresmejia3/hyperredact/internal/types"
	"github.com/andresmejia3/hyperredact/internal/video"
	"github.com/fogleman/gg"
)

// DefaultBoxColor is the outline colour used when none is configured.
var DefaultBoxColor = color.RGBA{R: 100, G: 100, B: 255, A: 255}

// BoxRenderer outlines faces whose content passes a plausibility check.
type BoxRenderer struct {
	Color     color.Color
	LineWidth float64
	Gate      Predicate
	// Labels writes "#<track>" beside each tracked box.
	Labels bool
}

var _ Renderer = (*BoxRenderer)(nil)

func NewBoxRenderer(c color.Color, lineWidth float64, gate Predicate) *BoxRenderer {
	if c == nil {
		c = DefaultBoxColor
	}
	if lineWidth <= 0 {
		lineWidth = 1
	}
	return &BoxRenderer{Color: c, LineWidth: lineWidth, Gate: gate}
}

func (b *BoxRenderer) Render(events []types.Event, src video.Source, sink video.Sink) error {
	return Replay(events, src, sink, b.Outline)
}

// Outline strokes region's border on frame when the gate accepts its pixels.
// A nil gate accepts everything.
func (b *BoxRenderer) Outline(frame *image.RGBA, region image.Rectangle, track int) {
	if b.Gate != nil && !b.Gate.Plausible(frame.SubImage(region)) {
		return
	}
	dc := gg.NewContextForRGBA(frame)
	dc.SetColor(b.Color)
	dc.SetLineWidth(b.LineWidth)
	// Pixel centres sit on half coordinates; this keeps a 1px line on one pixel row.
	dc.DrawRectangle(float64(region.Min.X)+0.5, float64(region.Min.Y)+0.5, float64(region.Dx()-1), float64(region.Dy()-1))
	dc.Stroke()

	if b.Labels && track > 0 {
		// Baseline just above the box, or inside it when the box touches the top edge.
		y := float64(region.Min.Y) - 3
		if y < dc.FontHeight() {
			y = float64(region.Min.Y) + dc.FontHeight() + 1
		}
		dc.DrawString(fmt.Sprintf("#%d", track), float64(region.Min.X)+1, y)
	}
}
