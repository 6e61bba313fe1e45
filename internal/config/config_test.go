package config

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/hyperredact/internal/detect"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultDetectorSpecs(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	got := cfg.DetectorSpecs(image.Rect(0, 0, 640, 480))
	want := []detect.Spec{
		{Name: "frontalface", Engine: "pigo", Region: image.Rect(100, 100, 640, 480)},
		{Name: "top", Engine: "pigo", Region: image.Rect(0, 0, 640, 100)},
		{Name: "bottom", Engine: "pigo", Region: image.Rect(0, 380, 640, 480)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DetectorSpecs mismatch (-want +got):\n%s", diff)
	}

	if cfg.Mux.Threshold != 0.5 || cfg.Blur.Passes != 20 || cfg.Skin.MinFraction != 0.3 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	c, err := cfg.BoxColor()
	if err != nil || c != (color.RGBA{100, 100, 255, 255}) {
		t.Errorf("BoxColor = %v, %v", c, err)
	}
}

// The stock build has no OpenCV, so the defaults must open with what it has.
func TestDefaultDetectorsBuild(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	scanner, err := detect.Build(context.Background(), cfg.DetectorSpecs(image.Rect(0, 0, 640, 480)))
	if err != nil {
		t.Fatalf("Default detectors failed to build: %v", err)
	}
	defer scanner.Close()

	if _, err := scanner.Scan(image.NewRGBA(image.Rect(0, 0, 640, 480))); err != nil {
		t.Errorf("Scan with default detectors: %v", err)
	}
}

func TestRegionResolve(t *testing.T) {
	bounds := image.Rect(0, 0, 320, 240)
	tests := []struct {
		name   string
		region Region
		want   image.Rectangle
	}{
		{"absolute", Region{X: 10, Y: 20, Width: 30, Height: 40}, image.Rect(10, 20, 40, 60)},
		{"full frame", Region{}, bounds},
		{"far edge offset", Region{X: -50, Y: -60, Width: 50, Height: 60}, image.Rect(270, 180, 320, 240)},
		{"clipped", Region{X: 300, Y: 200, Width: 100, Height: 100}, image.Rect(300, 200, 320, 240)},
		{"shrunk", Region{X: 100, Y: 100, Width: -100, Height: -100}, image.Rect(100, 100, 320, 240)},
		{"outside", Region{X: 400, Y: 0, Width: 10, Height: 10}, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.region.Resolve(bounds); got != tt.want {
				t.Errorf("Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyperredact.yaml")
	doc := `
detectors:
  - name: face
    engine: pigo
    cascade: cascade/facefinder
    min_neighbors: 3
blur:
  passes: 5
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Detectors) != 1 || cfg.Detectors[0].Engine != "pigo" || cfg.Detectors[0].MinNeighbors != 3 {
		t.Errorf("Detectors not replaced: %+v", cfg.Detectors)
	}
	if cfg.Blur.Passes != 5 {
		t.Errorf("Blur.Passes = %d, want 5", cfg.Blur.Passes)
	}
	if cfg.Blur.Sigma != 2 || cfg.Mux.Threshold != 0.5 {
		t.Errorf("Unset fields lost their defaults: %+v", cfg)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"duplicate":    "detectors: [{name: a}, {name: a}]",
		"unnamed":      "detectors: [{engine: pigo}]",
		"neighbours":   "detectors: [{name: a, min_neighbors: -1}]",
		"threshold":    "mux: {threshold: 1.5}",
		"color":        "box: {color: blue}",
		"tracker":      "events: {tracker: kalman}",
		"syntax error": "detectors: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			os.WriteFile(path, []byte(doc), 0644)
			if _, err := Load(path); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDatabaseURL(t *testing.T) {
	if got := DatabaseURL("postgres://flag/db"); got != "postgres://flag/db" {
		t.Errorf("flag not preferred: %s", got)
	}

	t.Setenv("POSTGRES_HOST", "")
	if got := DatabaseURL(""); got != "postgres://localhost:5432/hyperredact" {
		t.Errorf("default = %s", got)
	}

	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "frames")
	t.Setenv("POSTGRES_PORT", "")
	if got := DatabaseURL(""); got != "postgres://u:p@db:5432/frames" {
		t.Errorf("env = %s", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := LoadEnv(); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}
