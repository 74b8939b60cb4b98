package gate

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ROI is a sub-rectangle expressed as fractions of the canvas. The same
// fractions are applied to the reference and the resized candidate so both
// crops cover the same part of the layout.
type ROI struct {
	Top    float64 `yaml:"top" toml:"top" json:"top"`
	Bottom float64 `yaml:"bottom" toml:"bottom" json:"bottom"`
	Left   float64 `yaml:"left" toml:"left" json:"left"`
	Right  float64 `yaml:"right" toml:"right" json:"right"`
}

// Rect resolves the fractions against a w x h canvas, clamped to it.
func (r ROI) Rect(w, h int) image.Rectangle {
	rect := image.Rect(
		int(r.Left*float64(w)), int(r.Top*float64(h)),
		int(r.Right*float64(w)), int(r.Bottom*float64(h)),
	)
	return rect.Intersect(image.Rect(0, 0, w, h))
}

// Crop copies the ROI out of g.
func (r ROI) Crop(g *Grid) (*Grid, error) {
	rect := r.Rect(g.W, g.H)
	if rect.Empty() {
		return nil, fmt.Errorf("%w: %+v on %dx%d canvas", ErrEmptyRegion, r, g.W, g.H)
	}
	out := NewGrid(rect.Dx(), rect.Dy())
	for y := 0; y < out.H; y++ {
		src := g.Pix[(rect.Min.Y+y)*g.W+rect.Min.X:]
		copy(out.Pix[y*out.W:(y+1)*out.W], src[:out.W])
	}
	return out, nil
}

// Smooth applies a Gaussian blur. sigma <= 0 returns g unchanged.
func Smooth(g *Grid, sigma float64) *Grid {
	if sigma <= 0 {
		return g
	}
	return fromNRGBA(imaging.Blur(g.Image(), sigma))
}

// Resize resamples g to w x h with bilinear interpolation. A grid that
// already has the requested size is returned as is.
func Resize(g *Grid, w, h int) *Grid {
	if g.W == w && g.H == h {
		return g
	}
	return fromNRGBA(imaging.Resize(g.Image(), w, h, imaging.Linear))
}

// Normalize brings the candidate onto the reference canvas, smooths both
// and returns the (reference, candidate) ROI pair.
func Normalize(cand *Grid, ref *Reference, roi ROI, sigma float64) (*Grid, *Grid, error) {
	refROI, err := roi.Crop(ref.Blurred(sigma))
	if err != nil {
		return nil, nil, fmt.Errorf("reference roi: %w", err)
	}
	candROI, err := normalizeCandidate(cand, ref.W(), ref.H(), roi, sigma)
	if err != nil {
		return nil, nil, err
	}
	return refROI, candROI, nil
}

func normalizeCandidate(cand *Grid, w, h int, roi ROI, sigma float64) (*Grid, error) {
	out, err := roi.Crop(Smooth(Resize(cand, w, h), sigma))
	if err != nil {
		return nil, fmt.Errorf("candidate roi: %w", err)
	}
	return out, nil
}
