package render

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/andresmejia3/hyperredact/internal/video"
	"github.com/disintegration/imaging"
)

// Adjustment is the contrast/levels correction applied before detection and
// written out by the adjusted render mode. Zero values leave a channel alone.
type Adjustment struct {
	Contrast   float64 // percentage, -100..100
	Brightness float64 // percentage, -100..100
	Gamma      float64 // 1 or 0 is identity
}

// Identity reports whether Apply would return the input unchanged.
func (a Adjustment) Identity() bool {
	return a.Contrast == 0 && a.Brightness == 0 && (a.Gamma == 0 || a.Gamma == 1)
}

// Apply returns an adjusted copy of img; img is not modified.
func (a Adjustment) Apply(img *image.RGBA) *image.RGBA {
	if a.Identity() {
		return video.CloneRGBA(img)
	}
	out := imaging.Clone(img)
	if a.Contrast != 0 {
		out = imaging.AdjustContrast(out, a.Contrast)
	}
	if a.Brightness != 0 {
		out = imaging.AdjustBrightness(out, a.Brightness)
	}
	if a.Gamma != 0 && a.Gamma != 1 {
		out = imaging.AdjustGamma(out, a.Gamma)
	}
	rgba := image.NewRGBA(out.Bounds())
	draw.Draw(rgba, rgba.Bounds(), out, out.Bounds().Min, draw.Src)
	return rgba
}

// AdjustRenderer writes an adjusted copy of every source frame, no redaction.
type AdjustRenderer struct {
	Adjustment Adjustment
}

// Render rewinds src, copies it to sink until the source ends and releases
// the sink. It returns the number of frames written.
func (a *AdjustRenderer) Render(src video.Source, sink video.Sink) (int, error) {
	if err := src.Rewind(); err != nil {
		return 0, fmt.Errorf("rewind source: %w", err)
	}
	n := 0
	for {
		frame, ok := src.Read()
		if !ok {
			break
		}
		if err := sink.Write(a.Adjustment.Apply(frame)); err != nil {
			return n, fmt.Errorf("write frame %d: %w", n, err)
		}
		n++
	}
	return n, sink.Release()
}
