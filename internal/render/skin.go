package render

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Predicate judges whether an image region is plausibly what was detected.
type Predicate interface {
	Plausible(region image.Image) bool
}

// SkinPredicate accepts a region when at least MinFraction of its pixels fall
// inside a human skin-tone model.
type SkinPredicate struct {
	MinFraction float64
}

var _ Predicate = SkinPredicate{}

func (s SkinPredicate) Plausible(region image.Image) bool {
	b := region.Bounds()
	total := b.Dx() * b.Dy()
	if total <= 0 {
		return false
	}
	skin := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if IsSkin(region.At(x, y)) {
				skin++
			}
		}
	}
	return float64(skin)/float64(total) >= s.MinFraction
}

// IsSkin combines a chroma box in YCbCr with a warm hue band in HSV.
// Transparent pixels are never skin.
func IsSkin(c color.Color) bool {
	cc, ok := colorful.MakeColor(c)
	if !ok {
		return false
	}
	r, g, b := cc.RGB255()
	_, cb, cr := color.RGBToYCbCr(r, g, b)
	if cb < 77 || cb > 127 || cr < 133 || cr > 173 {
		return false
	}
	h, s, v := cc.Hsv()
	return (h <= 50 || h >= 340) && s >= 0.1 && v >= 0.2
}
