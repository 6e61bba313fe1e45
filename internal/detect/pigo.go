package detect

import (
	_ "embed"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// facefinder is the frontal face cascade shipped with pigo.
//
//go:embed data/facefinder
var facefinder []byte

// PigoPrimitive runs a pigo pixel-intensity cascade.
type PigoPrimitive struct {
	classifier *pigo.Pigo

	MinSize     int
	ShiftFactor float64
	ScaleFactor float64
	// IoU used both to cluster raw hits and to count a cluster's neighbours.
	IoU float64
	// Clusters scoring at or below MinQuality are dropped.
	MinQuality float32
}

// NewPigoPrimitive unpacks the cascade at path. An empty path selects the
// embedded facefinder cascade.
func NewPigoPrimitive(path string) (*PigoPrimitive, error) {
	if path == "" {
		return newPigo(facefinder)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return newPigo(data)
}

func newPigo(cascade []byte) (p *PigoPrimitive, err error) {
	// Unpack indexes the packet without bounds checks and panics on a truncated file.
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: malformed cascade file: %v", ErrConfiguration, r)
		}
	}()
	// Unpack the binary file. This will return the number of cascade trees,
	// the tree depth, the threshold and the prediction from tree's leaf nodes.
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("%w: error unpacking the cascade file: %v", ErrConfiguration, err)
	}
	return &PigoPrimitive{
		classifier:  classifier,
		MinSize:     20,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		IoU:         0.2,
		MinQuality:  5.0,
	}, nil
}

func (p *PigoPrimitive) Detect(img image.Image, minNeighbors int) ([]image.Rectangle, error) {
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()
	if cols < p.MinSize || rows < p.MinSize {
		return nil, nil
	}

	// pigo indexes pixels from the origin, so hand it a rebased copy.
	pixels := pigo.RgbToGrayscale(imaging.Clone(img))
	cParams := pigo.CascadeParams{
		MinSize:     p.MinSize,
		MaxSize:     max(cols, rows),
		ShiftFactor: p.ShiftFactor,
		ScaleFactor: p.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	raw := p.classifier.RunCascade(cParams, 0)
	clusters := p.classifier.ClusterDetections(append([]pigo.Detection(nil), raw...), p.IoU)

	var out []image.Rectangle
	for _, c := range clusters {
		if c.Q <= p.MinQuality {
			continue
		}
		if neighbours(c, raw, p.IoU) < minNeighbors {
			continue
		}
		out = append(out, detectionRect(c).Add(b.Min))
	}
	return out, nil
}

func (p *PigoPrimitive) Close() error { return nil }

// detectionRect converts a centre/scale detection into a rectangle.
func detectionRect(d pigo.Detection) image.Rectangle {
	half := d.Scale / 2
	return image.Rect(d.Col-half, d.Row-half, d.Col-half+d.Scale, d.Row-half+d.Scale)
}

// neighbours counts the raw hits overlapping cluster above iou, excluding the
// strongest one, the way a Haar cascade counts supporting windows.
func neighbours(cluster pigo.Detection, raw []pigo.Detection, iou float64) int {
	n := 0
	c := detectionRect(cluster)
	for _, d := range raw {
		if rectIoU(c, detectionRect(d)) > iou {
			n++
		}
	}
	return max(n-1, 0)
}

func rectIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return math.Min(ia/union, 1)
}
