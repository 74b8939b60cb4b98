package gate

import "math"

// GeometrySpec holds the O(1) size, orientation and aspect gates of a
// profile. Bounds are inclusive.
type GeometrySpec struct {
	MinWidth         int     `yaml:"min_width" toml:"min_width" json:"min_width,omitempty"`
	MinHeight        int     `yaml:"min_height" toml:"min_height" json:"min_height,omitempty"`
	AspectMin        float64 `yaml:"aspect_min" toml:"aspect_min" json:"aspect_min,omitempty"`
	AspectMax        float64 `yaml:"aspect_max" toml:"aspect_max" json:"aspect_max,omitempty"`
	RequireLandscape bool    `yaml:"require_landscape" toml:"require_landscape" json:"require_landscape"`

	// RelativeToReference replaces the fixed minimums with the reference
	// canvas: width >= reference width and height >= HeightTolerance times
	// the reference height. Failures report UPLOAD_TOO_SMALL.
	RelativeToReference bool    `yaml:"relative_to_reference" toml:"relative_to_reference" json:"relative_to_reference"`
	HeightTolerance     float64 `yaml:"height_tolerance" toml:"height_tolerance" json:"height_tolerance,omitempty"`

	// RatioTolerance > 0 replaces the aspect range with a band around the
	// reference ratio. Failures report NOT_LANDSCAPE.
	RatioTolerance float64 `yaml:"ratio_tolerance" toml:"ratio_tolerance" json:"ratio_tolerance,omitempty"`
}

// Check runs orientation, size and aspect gates in that order and returns
// the first failing reason, or ReasonNone. ref may be nil unless the spec is
// reference-relative.
func (s GeometrySpec) Check(g *Grid, ref *Reference) Reason {
	w, h := g.W, g.H
	if s.RequireLandscape && w <= h {
		return ReasonInvalidOrientation
	}

	if s.RelativeToReference {
		if w < ref.W() || float64(h) < s.HeightTolerance*float64(ref.H()) {
			return ReasonUploadTooSmall
		}
	} else if w < s.MinWidth || h < s.MinHeight {
		return ReasonImageTooSmall
	}

	ratio := g.Ratio()
	if s.RatioTolerance > 0 {
		if math.Abs(ref.Grid.Ratio()-ratio) > s.RatioTolerance {
			return ReasonNotLandscape
		}
		return ReasonNone
	}
	if ratio < s.AspectMin || ratio > s.AspectMax {
		return ReasonInvalidLayout
	}
	return ReasonNone
}

// needsReference reports whether Check dereferences the reference.
func (s GeometrySpec) needsReference() bool {
	return s.RelativeToReference || s.RatioTolerance > 0
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
