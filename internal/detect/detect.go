// Package detect runs region-constrained detection primitives over a frame
// and collects their raw candidate rectangles.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/andresmejia3/hyperredact/internal/types"
)

// ErrConfiguration marks a primitive that could not be loaded. It is fatal
// and raised before any frame is scanned.
var ErrConfiguration = errors.New("detector configuration error")

// Primitive is a black-box object detector. Returned rectangles are in img's
// own coordinate space, so a sub-image yields full-frame coordinates.
type Primitive interface {
	Detect(img image.Image, minNeighbors int) ([]image.Rectangle, error)
	Close() error
}

// Engine names accepted in detector specs.
const (
	EngineHaar = "haar"
	EnginePigo = "pigo"
	EngineExec = "exec"
)

// Engines lists the engines this binary can open.
func Engines() []string {
	if haarBuilt {
		return []string{EngineHaar, EnginePigo, EngineExec}
	}
	return []string{EnginePigo, EngineExec}
}

// Spec is a fully resolved detector configuration.
type Spec struct {
	Name         string
	Engine       string
	Cascade      string   // classifier data file (haar, pigo)
	Command      []string // worker argv (exec)
	MinNeighbors int
	Region       image.Rectangle
}

// Open loads the primitive named by spec.Engine. Any load failure wraps
// ErrConfiguration.
func Open(ctx context.Context, spec Spec) (Primitive, error) {
	var (
		p   Primitive
		err error
	)
	switch spec.Engine {
	case EngineHaar, "":
		p, err = NewHaarPrimitive(spec.Cascade)
	case EnginePigo:
		p, err = NewPigoPrimitive(spec.Cascade)
	case EngineExec:
		p, err = NewExecPrimitive(ctx, spec.Command)
	default:
		err = fmt.Errorf("%w: unknown engine %q", ErrConfiguration, spec.Engine)
	}
	if err != nil {
		return nil, fmt.Errorf("detector %q: %w", spec.Name, err)
	}
	return p, nil
}

// RegionDetector binds one primitive to a fixed sub-rectangle of the frame.
type RegionDetector struct {
	Name         string
	Primitive    Primitive
	Region       image.Rectangle
	MinNeighbors int
}

// NewRegionDetector validates the region and neighbour count.
func NewRegionDetector(name string, p Primitive, region image.Rectangle, minNeighbors int) (*RegionDetector, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: detector %q has no primitive", ErrConfiguration, name)
	}
	if region.Empty() {
		return nil, fmt.Errorf("%w: detector %q has an empty region %v", ErrConfiguration, name, region)
	}
	if minNeighbors < 0 {
		return nil, fmt.Errorf("%w: detector %q has negative min_neighbors", ErrConfiguration, name)
	}
	return &RegionDetector{Name: name, Primitive: p, Region: region, MinNeighbors: minNeighbors}, nil
}

// Detect scans the part of frame inside the region. Results spilling past
// the region are clipped; results with nothing left inside are discarded.
func (d *RegionDetector) Detect(frame *image.RGBA) ([]types.Rectangle, error) {
	area := d.Region.Intersect(frame.Bounds())
	if area.Empty() {
		return nil, nil
	}
	found, err := d.Primitive.Detect(frame.SubImage(area), d.MinNeighbors)
	if err != nil {
		return nil, fmt.Errorf("detector %q: %w", d.Name, err)
	}

	out := make([]types.Rectangle, 0, len(found))
	for _, r := range found {
		r = r.Intersect(area)
		if r.Empty() {
			continue
		}
		out = append(out, types.FromImageRect(r))
	}
	return out, nil
}

// Scanner is the MultiRegionScanner: every detector runs against every frame.
type Scanner struct {
	Detectors []*RegionDetector
}

func NewScanner(detectors ...*RegionDetector) *Scanner {
	return &Scanner{Detectors: detectors}
}

// Scan returns the union of raw detections, in detector order.
func (s *Scanner) Scan(frame *image.RGBA) ([]types.Rectangle, error) {
	var raw []types.Rectangle
	for _, d := range s.Detectors {
		found, err := d.Detect(frame)
		if err != nil {
			return nil, err
		}
		raw = append(raw, found...)
	}
	return raw, nil
}

// Close releases every primitive, returning the first failure.
func (s *Scanner) Close() error {
	var first error
	for _, d := range s.Detectors {
		if err := d.Primitive.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build opens a primitive per spec and wraps it in a RegionDetector. Already
// opened primitives are closed when a later one fails.
func Build(ctx context.Context, specs []Spec) (*Scanner, error) {
	s := &Scanner{}
	for _, spec := range specs {
		p, err := Open(ctx, spec)
		if err != nil {
			s.Close()
			return nil, err
		}
		d, err := NewRegionDetector(spec.Name, p, spec.Region, spec.MinNeighbors)
		if err != nil {
			p.Close()
			s.Close()
			return nil, err
		}
		s.Detectors = append(s.Detectors, d)
	}
	return s, nil
}
