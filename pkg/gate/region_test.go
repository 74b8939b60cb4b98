package gate

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fractions truncate toward zero: 0.82*300 is just under 246
func TestROIRectResolvesFractions(t *testing.T) {
	roi := StructuralProfile().ROI
	assert.Equal(t, image.Rect(100, 54, 900, 245), roi.Rect(1000, 300))
}

func TestROICropCopiesInterior(t *testing.T) {
	g := receiptGrid(200, 100)
	roi := ROI{Top: 0.5, Bottom: 1, Left: 0.25, Right: 0.75}
	out, err := roi.Crop(g)
	require.NoError(t, err)
	require.Equal(t, 100, out.W)
	require.Equal(t, 50, out.H)
	assert.Equal(t, g.At(50, 50), out.At(0, 0))
	assert.Equal(t, g.At(149, 99), out.At(99, 49))
}

func TestROICropEmpty(t *testing.T) {
	g := receiptGrid(200, 100)
	for _, roi := range []ROI{
		{Top: 0.5, Bottom: 0.5, Left: 0, Right: 1},
		{Top: 0, Bottom: 1, Left: 0.9, Right: 0.1},
		{Top: 1.2, Bottom: 1.5, Left: 0, Right: 1},
	} {
		_, err := roi.Crop(g)
		assert.ErrorIs(t, err, ErrEmptyRegion, "%+v", roi)
	}
}

func TestResizeSameSizeIsIdentity(t *testing.T) {
	g := receiptGrid(120, 40)
	assert.Same(t, g, Resize(g, 120, 40))

	up := Resize(g, 240, 80)
	assert.Equal(t, 240, up.W)
	assert.Equal(t, 80, up.H)
	// flat paper survives resampling unchanged
	assert.Equal(t, uint8(paper), up.At(4, 30))
}

func TestSmoothKeepsFlatRegions(t *testing.T) {
	g := solidGrid(64, 32, 200)
	s := Smooth(g, 1.1)
	assert.NotSame(t, g, s)
	for _, v := range s.Pix {
		require.Equal(t, uint8(200), v)
	}
	assert.Same(t, g, Smooth(g, 0))
}

func TestNormalizeDeterministic(t *testing.T) {
	ref := testReference(t)
	cand := Resize(ref.Grid, 1500, 450)
	cfg := StructuralProfile()

	r1, c1, err := Normalize(cand, ref, cfg.ROI, cfg.BlurSigma)
	require.NoError(t, err)
	r2, c2, err := Normalize(cand, ref, cfg.ROI, cfg.BlurSigma)
	require.NoError(t, err)

	assert.Equal(t, r1.Pix, r2.Pix)
	assert.Equal(t, c1.Pix, c2.Pix)
	assert.Equal(t, r1.W, c1.W)
	assert.Equal(t, r1.H, c1.H)
}
