// Package config loads the detector and render settings.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/andresmejia3/hyperredact/internal/detect"
	"github.com/joho/godotenv"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultYAML []byte

type Region struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Resolve turns the frame-relative region into absolute coordinates inside bounds.
func (r Region) Resolve(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	x, y := r.X, r.Y
	if x < 0 {
		x += w
	}
	if y < 0 {
		y += h
	}
	rw, rh := r.Width, r.Height
	if rw <= 0 {
		rw += w
	}
	if rh <= 0 {
		rh += h
	}
	return image.Rect(x, y, x+rw, y+rh).Add(bounds.Min).Intersect(bounds)
}

type Detector struct {
	Name         string   `yaml:"name"`
	Engine       string   `yaml:"engine"`
	Cascade      string   `yaml:"cascade"`
	Command      []string `yaml:"command"`
	MinNeighbors int      `yaml:"min_neighbors"`
	Region       Region   `yaml:"region"`
}

type Config struct {
	Detectors []Detector `yaml:"detectors"`
	Mux       struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"mux"`
	Blur struct {
		Passes int     `yaml:"passes"`
		Sigma  float64 `yaml:"sigma"`
	} `yaml:"blur"`
	Box struct {
		Color     string  `yaml:"color"`
		LineWidth float64 `yaml:"line_width"`
		Labels    bool    `yaml:"labels"`
	} `yaml:"box"`
	Skin struct {
		MinFraction float64 `yaml:"min_fraction"`
	} `yaml:"skin"`
	Adjust struct {
		Contrast   float64 `yaml:"contrast"`
		Gamma      float64 `yaml:"gamma"`
		Brightness float64 `yaml:"brightness"`
	} `yaml:"adjust"`
	Output struct {
		Codec string `yaml:"codec"`
	} `yaml:"output"`
	Events struct {
		Tracker     string  `yaml:"tracker"`
		MaxDistance float64 `yaml:"max_distance"`
	} `yaml:"events"`
}

// Tracker names accepted in events.tracker.
const (
	TrackerPresence = "presence"
	TrackerCentroid = "centroid"
)

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return Parse(defaultYAML)
}

// Load reads path over the embedded defaults. An empty path returns the defaults.
// A detectors list in the file replaces the default list entirely.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Parse decodes a complete configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if len(c.Detectors) == 0 {
		return errors.New("config: at least one detector is required")
	}
	seen := map[string]bool{}
	for i, d := range c.Detectors {
		if d.Name == "" {
			return fmt.Errorf("config: detector %d has no name", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("config: duplicate detector %q", d.Name)
		}
		seen[d.Name] = true
		if d.MinNeighbors < 0 {
			return fmt.Errorf("config: detector %q: min_neighbors must be >= 0", d.Name)
		}
	}
	if c.Mux.Threshold <= 0 || c.Mux.Threshold > 1 {
		return fmt.Errorf("config: mux.threshold %v must be in (0, 1]", c.Mux.Threshold)
	}
	if _, err := c.BoxColor(); err != nil {
		return err
	}
	switch c.Events.Tracker {
	case "", TrackerPresence, TrackerCentroid:
	default:
		return fmt.Errorf("config: unknown events.tracker %q", c.Events.Tracker)
	}
	return nil
}

// DetectorSpecs resolves every detector region against the frame bounds.
func (c *Config) DetectorSpecs(bounds image.Rectangle) []detect.Spec {
	specs := make([]detect.Spec, 0, len(c.Detectors))
	for _, d := range c.Detectors {
		specs = append(specs, detect.Spec{
			Name:         d.Name,
			Engine:       d.Engine,
			Cascade:      d.Cascade,
			Command:      d.Command,
			MinNeighbors: d.MinNeighbors,
			Region:       d.Region.Resolve(bounds),
		})
	}
	return specs
}

// BoxColor parses box.color as a hex triplet. Empty means the renderer default.
func (c *Config) BoxColor() (color.Color, error) {
	if c.Box.Color == "" {
		return nil, nil
	}
	col, err := colorful.Hex(c.Box.Color)
	if err != nil {
		return nil, fmt.Errorf("config: box.color: %w", err)
	}
	r, g, b := col.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// LoadEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// DatabaseURL returns flag when set, otherwise a connection string built
// from the POSTGRES_* environment, otherwise the local default.
func DatabaseURL(flag string) string {
	if flag != "" {
		return flag
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "postgres://localhost:5432/hyperredact"
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
