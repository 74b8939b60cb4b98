package gate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Strategy selects which content stages follow the geometry gate.
type Strategy string

const (
	// StrategyGeometry stops after the geometry gate and reports size metrics.
	StrategyGeometry Strategy = "geometry"
	// StrategyStructural runs normalize, overlay and structural comparison.
	StrategyStructural Strategy = "structural"
	// StrategyTemplate searches for the reference inside the candidate.
	StrategyTemplate Strategy = "template"
)

// Built-in profile names.
const (
	ProfileGeometry    = "geometry"
	ProfileOrientation = "orientation"
	ProfileStructural  = "structural"
	ProfileTemplate    = "template"
)

// Config is one named pipeline configuration. All thresholds were tuned
// against real uploads and are meant to be recalibrated through a profiles
// file rather than in code.
type Config struct {
	Name     string       `yaml:"-" toml:"-" json:"name"`
	Strategy Strategy     `yaml:"strategy" toml:"strategy" json:"strategy"`
	Geometry GeometrySpec `yaml:"geometry" toml:"geometry" json:"geometry"`

	// structural
	ROI           ROI     `yaml:"roi" toml:"roi" json:"roi,omitempty"`
	BlurSigma     float64 `yaml:"blur_sigma" toml:"blur_sigma" json:"blur_sigma,omitempty"`
	EdgeLow       float64 `yaml:"edge_low" toml:"edge_low" json:"edge_low,omitempty"`
	EdgeHigh      float64 `yaml:"edge_high" toml:"edge_high" json:"edge_high,omitempty"`
	EdgeLimit     float64 `yaml:"edge_limit" toml:"edge_limit" json:"edge_limit,omitempty"` // <= 0 disables the overlay check
	DiffLimit     float64 `yaml:"diff_limit" toml:"diff_limit" json:"diff_limit,omitempty"`
	SSIMThreshold float64 `yaml:"ssim_threshold" toml:"ssim_threshold" json:"ssim_threshold,omitempty"`
	SSIMWindow    int     `yaml:"ssim_window" toml:"ssim_window" json:"ssim_window,omitempty"`

	// template
	MatchThreshold float64 `yaml:"match_threshold" toml:"match_threshold" json:"match_threshold,omitempty"`
	MatchWidth     int     `yaml:"match_width" toml:"match_width" json:"match_width,omitempty"`

	MaxPixels int `yaml:"max_pixels" toml:"max_pixels" json:"max_pixels,omitempty"`
}

// GeometryProfile is the plain size and aspect gate in front of OCR.
func GeometryProfile() Config {
	return Config{
		Name:     ProfileGeometry,
		Strategy: StrategyGeometry,
		Geometry: GeometrySpec{MinWidth: 800, MinHeight: 250, AspectMin: 2.5, AspectMax: 6.5},
	}
}

// OrientationProfile adds a landscape requirement with looser size bounds.
func OrientationProfile() Config {
	return Config{
		Name:     ProfileOrientation,
		Strategy: StrategyGeometry,
		Geometry: GeometrySpec{MinWidth: 600, MinHeight: 200, AspectMin: 2.0, AspectMax: 7.0, RequireLandscape: true},
	}
}

// StructuralProfile compares the stable interior of the upload with the
// reference after aligning both to the reference canvas.
func StructuralProfile() Config {
	return Config{
		Name:          ProfileStructural,
		Strategy:      StrategyStructural,
		Geometry:      GeometrySpec{MinWidth: 600, MinHeight: 180, AspectMin: 2.0, AspectMax: 7.0, RequireLandscape: true},
		ROI:           ROI{Top: 0.18, Bottom: 0.82, Left: 0.10, Right: 0.90},
		BlurSigma:     1.1,
		EdgeLow:       50,
		EdgeHigh:      150,
		EdgeLimit:     35,
		DiffLimit:     40,
		SSIMThreshold: 0.55,
		SSIMWindow:    DefaultSSIMWindow,
	}
}

// TemplateProfile accepts uploads that contain the reference anywhere inside
// a larger capture.
func TemplateProfile() Config {
	return Config{
		Name:     ProfileTemplate,
		Strategy: StrategyTemplate,
		Geometry: GeometrySpec{
			RelativeToReference: true,
			HeightTolerance:     0.9,
			RatioTolerance:      1.0,
		},
		MatchThreshold: 0.75,
		MatchWidth:     200,
	}
}

// Builtins returns fresh copies of the four built-in profiles keyed by name.
func Builtins() map[string]Config {
	out := map[string]Config{}
	for _, c := range []Config{GeometryProfile(), OrientationProfile(), StructuralProfile(), TemplateProfile()} {
		out[c.Name] = c
	}
	return out
}

// Validate rejects configurations the pipeline cannot run meaningfully.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("profile: empty name")
	}
	g := c.Geometry
	if g.MinWidth < 0 || g.MinHeight < 0 {
		return fmt.Errorf("profile %s: negative minimum size", c.Name)
	}
	if g.RatioTolerance < 0 {
		return fmt.Errorf("profile %s: negative ratio_tolerance", c.Name)
	}
	if g.RatioTolerance == 0 && (g.AspectMin <= 0 || g.AspectMax < g.AspectMin) {
		return fmt.Errorf("profile %s: aspect range [%g, %g] invalid", c.Name, g.AspectMin, g.AspectMax)
	}
	if g.RelativeToReference && (g.HeightTolerance <= 0 || g.HeightTolerance > 1) {
		return fmt.Errorf("profile %s: height_tolerance %g outside (0, 1]", c.Name, g.HeightTolerance)
	}

	switch c.Strategy {
	case StrategyGeometry:
	case StrategyStructural:
		r := c.ROI
		if r.Top < 0 || r.Left < 0 || r.Bottom > 1 || r.Right > 1 || r.Top >= r.Bottom || r.Left >= r.Right {
			return fmt.Errorf("profile %s: roi %+v is not a sub-rectangle of the canvas", c.Name, r)
		}
		if c.EdgeLow < 0 || c.EdgeHigh < c.EdgeLow {
			return fmt.Errorf("profile %s: edge thresholds %g/%g invalid", c.Name, c.EdgeLow, c.EdgeHigh)
		}
		if c.SSIMWindow != 0 && c.SSIMWindow < 2 {
			return fmt.Errorf("profile %s: ssim_window %d too small", c.Name, c.SSIMWindow)
		}
		if c.SSIMThreshold < -1 || c.SSIMThreshold > 1 {
			return fmt.Errorf("profile %s: ssim_threshold %g outside [-1, 1]", c.Name, c.SSIMThreshold)
		}
	case StrategyTemplate:
		if g.HeightTolerance <= 0 || g.HeightTolerance > 1 {
			return fmt.Errorf("profile %s: template strategy needs height_tolerance in (0, 1]", c.Name)
		}
		if c.MatchThreshold < -1 || c.MatchThreshold > 1 {
			return fmt.Errorf("profile %s: match_threshold %g outside [-1, 1]", c.Name, c.MatchThreshold)
		}
		if c.MatchWidth < 0 {
			return fmt.Errorf("profile %s: negative match_width", c.Name)
		}
	default:
		return fmt.Errorf("profile %s: unknown strategy %q", c.Name, c.Strategy)
	}
	return nil
}

// entryDecoder decodes one profile entry onto v, leaving fields the entry
// does not mention untouched.
type entryDecoder func(v any) error

// LoadProfiles returns the built-in profiles with the overrides from the
// file at path applied. Files ending in .toml are read as TOML, anything
// else as YAML; both carry a top-level `profiles` table. An entry named
// after a built-in patches it; any other entry starts from the built-in
// named by its `base` key. An empty path yields the built-ins.
func LoadProfiles(path string) (map[string]Config, error) {
	out := Builtins()
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var entries map[string]entryDecoder
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		entries, err = tomlEntries(data)
	} else {
		entries, err = yamlEntries(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	builtins := Builtins()
	for _, name := range names {
		decode := entries[name]
		var hdr struct {
			Base string `yaml:"base" toml:"base"`
		}
		if err := decode(&hdr); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		start, ok := builtins[name]
		if hdr.Base != "" {
			start, ok = builtins[hdr.Base]
		}
		if !ok {
			return nil, fmt.Errorf("profile %s: %w %q (set base to a built-in)", name, ErrUnknownProfile, hdr.Base)
		}
		cfg := start
		if err := decode(&cfg); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		cfg.Name = name
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}

func yamlEntries(data []byte) (map[string]entryDecoder, error) {
	var file struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	out := make(map[string]entryDecoder, len(file.Profiles))
	for name, node := range file.Profiles {
		node := node
		out[name] = node.Decode
	}
	return out, nil
}

func tomlEntries(data []byte) (map[string]entryDecoder, error) {
	var file struct {
		Profiles map[string]toml.Primitive `toml:"profiles"`
	}
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, err
	}
	out := make(map[string]entryDecoder, len(file.Profiles))
	for name, prim := range file.Profiles {
		prim := prim
		out[name] = func(v any) error { return md.PrimitiveDecode(prim, v) }
	}
	return out, nil
}
