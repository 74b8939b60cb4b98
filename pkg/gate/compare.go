package gate

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SSIM stabilizers for 8-bit data (K1=0.01, K2=0.03, L=255).
const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

// DefaultSSIMWindow is the side of the square SSIM window.
const DefaultSSIMWindow = 7

// CompareOptions carries the StructuralComparator thresholds.
type CompareOptions struct {
	DiffLimit     float64
	SSIMThreshold float64
	EdgeLow       float64
	EdgeHigh      float64
	Window        int
}

// MeanAbsDiff is the mean absolute pixel difference of two equally sized grids.
func MeanAbsDiff(a, b *Grid) (float64, error) {
	if a.W != b.W || a.H != b.H {
		return 0, fmt.Errorf("mean diff: size mismatch %dx%d vs %dx%d", a.W, a.H, b.W, b.H)
	}
	if a.Empty() {
		return 0, fmt.Errorf("mean diff: %w", ErrEmptyRegion)
	}
	return floats.Distance(a.Floats(), b.Floats(), 1) / float64(len(a.Pix)), nil
}

// integral is a summed-area table with a zero first row and column.
type integral struct {
	w    int
	vals []float64
}

func newIntegral(w, h int, at func(i int) float64) *integral {
	iw := w + 1
	t := &integral{w: iw, vals: make([]float64, iw*(h+1))}
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += at(y*w + x)
			t.vals[(y+1)*iw+x+1] = t.vals[y*iw+x+1] + row
		}
	}
	return t
}

// sum over the half-open window [x0,x1) x [y0,y1)
func (t *integral) sum(x0, y0, x1, y1 int) float64 {
	w := t.w
	return t.vals[y1*w+x1] - t.vals[y0*w+x1] - t.vals[y1*w+x0] + t.vals[y0*w+x0]
}

// SSIM is the mean structural similarity of a and b over every fully
// contained win x win window, using sample (N-1) variances. The result lies
// in [-1, 1] and is not rounded.
func SSIM(a, b *Grid, win int) (float64, error) {
	if a.W != b.W || a.H != b.H {
		return 0, fmt.Errorf("ssim: size mismatch %dx%d vs %dx%d", a.W, a.H, b.W, b.H)
	}
	if win <= 1 {
		win = DefaultSSIMWindow
	}
	if a.W < win || a.H < win {
		return 0, fmt.Errorf("ssim: %dx%d region smaller than %dpx window", a.W, a.H, win)
	}
	pa, pb := a.Pix, b.Pix
	sa := newIntegral(a.W, a.H, func(i int) float64 { return float64(pa[i]) })
	sb := newIntegral(a.W, a.H, func(i int) float64 { return float64(pb[i]) })
	saa := newIntegral(a.W, a.H, func(i int) float64 { return float64(pa[i]) * float64(pa[i]) })
	sbb := newIntegral(a.W, a.H, func(i int) float64 { return float64(pb[i]) * float64(pb[i]) })
	sab := newIntegral(a.W, a.H, func(i int) float64 { return float64(pa[i]) * float64(pb[i]) })

	n := float64(win * win)
	covNorm := n / (n - 1)
	scores := make([]float64, 0, (a.W-win+1)*(a.H-win+1))
	for y := 0; y+win <= a.H; y++ {
		for x := 0; x+win <= a.W; x++ {
			ux := sa.sum(x, y, x+win, y+win) / n
			uy := sb.sum(x, y, x+win, y+win) / n
			vx := covNorm * (saa.sum(x, y, x+win, y+win)/n - ux*ux)
			vy := covNorm * (sbb.sum(x, y, x+win, y+win)/n - uy*uy)
			vxy := covNorm * (sab.sum(x, y, x+win, y+win)/n - ux*uy)
			num := (2*ux*uy + ssimC1) * (2*vxy + ssimC2)
			den := (ux*ux + uy*uy + ssimC1) * (vx + vy + ssimC2)
			scores = append(scores, num/den)
		}
	}
	return stat.Mean(scores, nil), nil
}

// Compare runs the coarse mean-difference gate and then the edge-map SSIM
// gate on a normalized ROI pair.
func Compare(refROI, candROI *Grid, opts CompareOptions) (Verdict, error) {
	return compareEdges(refROI, candROI, Canny(refROI, opts.EdgeLow, opts.EdgeHigh), opts)
}

// compareEdges is Compare with the reference edge map supplied by the caller.
func compareEdges(refROI, candROI, refEdges *Grid, opts CompareOptions) (Verdict, error) {
	diff, err := MeanAbsDiff(refROI, candROI)
	if err != nil {
		return Verdict{}, err
	}
	log.Debug().Float64("mean_diff", diff).Float64("limit", opts.DiffLimit).Msg("layout check")
	if diff > opts.DiffLimit {
		return Reject(ReasonMultiTransaction, nil), nil
	}

	candEdges := Canny(candROI, opts.EdgeLow, opts.EdgeHigh)
	score, err := SSIM(refEdges, candEdges, opts.Window)
	if err != nil {
		return Verdict{}, err
	}
	score = round2(score)
	log.Debug().Float64("ssim", score).Float64("threshold", opts.SSIMThreshold).Msg("structure check")
	metrics := Metrics{MetricSimilarity: score}
	if score < opts.SSIMThreshold {
		return Reject(ReasonFormatMismatch, metrics), nil
	}
	return Accept(metrics), nil
}
