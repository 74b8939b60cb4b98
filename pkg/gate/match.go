package gate

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/dsp/fourier"
)

// matchBudget caps the multiply-adds of a direct scan; larger searches
// compute the cross-correlation for every offset with a 2-D FFT instead.
const matchBudget = 60_000_000

// MatchOptions configures the TemplateMatcher strategy.
type MatchOptions struct {
	Threshold       float64
	HeightTolerance float64
	// WorkWidth is the reference width used for matching; both images are
	// downscaled by the same factor. 0 matches at full resolution.
	WorkWidth int
}

// MatchResult is the best normalized cross-correlation over every offset.
type MatchResult struct {
	X, Y     int
	Score    float64
	Spectral bool
}

// matchTemplate is the precomputed pattern side of a match.
type matchTemplate struct {
	grid  *Grid
	mean  float64
	std   float64
	scale float64
}

func newMatchTemplate(ref *Grid, workWidth int) *matchTemplate {
	scale := 1.0
	if workWidth > 0 && workWidth < ref.W {
		scale = float64(workWidth) / float64(ref.W)
	}
	g := Resize(ref, scaled(ref.W, scale), scaled(ref.H, scale))
	var sum, sum2 float64
	for _, v := range g.Pix {
		f := float64(v)
		sum += f
		sum2 += f * f
	}
	n := float64(len(g.Pix))
	mean := sum / n
	std := 0.0
	if v := sum2/n - mean*mean; v > 0 {
		std = math.Sqrt(v)
	}
	return &matchTemplate{grid: g, mean: mean, std: std, scale: scale}
}

func scaled(v int, f float64) int {
	s := int(math.Round(float64(v) * f))
	if s < 1 {
		return 1
	}
	return s
}

// MatchTemplate slides tmpl over every offset of frame and returns the
// offset with the highest zero-mean normalized cross-correlation.
func MatchTemplate(frame, tmpl *Grid) (MatchResult, error) {
	return newMatchTemplate(tmpl, 0).search(frame)
}

func (t *matchTemplate) search(frame *Grid) (MatchResult, error) {
	tg := t.grid
	w, h := tg.W, tg.H
	W, H := frame.W, frame.H
	if W < w || H < h {
		return MatchResult{}, fmt.Errorf("match: frame %dx%d smaller than template %dx%d", W, H, w, h)
	}
	fp := frame.Pix
	sf := newIntegral(W, H, func(i int) float64 { return float64(fp[i]) })
	sf2 := newIntegral(W, H, func(i int) float64 { return float64(fp[i]) * float64(fp[i]) })
	n := float64(w * h)

	// ncc normalizes cross, the window's sum of frame*(tmpl-mean).
	ncc := func(x, y int, cross float64) float64 {
		meanF := sf.sum(x, y, x+w, y+h) / n
		varF := sf2.sum(x, y, x+w, y+h)/n - meanF*meanF
		if t.std <= 1e-9 {
			// flat pattern: only an equally flat window of the same level matches
			if varF <= 1e-6 && math.Abs(meanF-t.mean) < 0.5 {
				return 1
			}
			return 0
		}
		if varF <= 1e-9 {
			return 0
		}
		return cross / (n * math.Sqrt(varF) * t.std)
	}
	score := func(x, y int) float64 {
		if t.std <= 1e-9 {
			return ncc(x, y, 0)
		}
		var sumFT float64
		for ty := 0; ty < h; ty++ {
			row := fp[(y+ty)*W+x : (y+ty)*W+x+w]
			trow := tg.Pix[ty*w : (ty+1)*w]
			for tx, v := range trow {
				sumFT += float64(row[tx]) * float64(v)
			}
		}
		return ncc(x, y, sumFT-sf.sum(x, y, x+w, y+h)*t.mean)
	}

	best := MatchResult{Score: -1}
	if t.std > 1e-9 && float64((W-w+1)*(H-h+1))*n > matchBudget {
		best.Spectral = true
		plane, pw := t.correlate(frame)
		for y := 0; y <= H-h; y++ {
			for x := 0; x <= W-w; x++ {
				if s := ncc(x, y, plane[y*pw+x]); s > best.Score {
					best.X, best.Y, best.Score = x, y, s
				}
			}
		}
		return best, nil
	}
	for y := 0; y <= H-h; y++ {
		for x := 0; x <= W-w; x++ {
			if s := score(x, y); s > best.Score {
				best.X, best.Y, best.Score = x, y, s
			}
		}
	}
	return best, nil
}

// correlate returns sum(frame*(tmpl-mean)) for every offset, laid out on a
// plane of row length pw. Offsets that keep the template inside the frame
// never wrap, so the circular correlation is exact there.
func (t *matchTemplate) correlate(frame *Grid) ([]float64, int) {
	pw, ph := fftSize(frame.W), fftSize(frame.H)
	f := make([]complex128, pw*ph)
	for y := 0; y < frame.H; y++ {
		for x, v := range frame.Pix[y*frame.W : (y+1)*frame.W] {
			f[y*pw+x] = complex(float64(v), 0)
		}
	}
	tg := t.grid
	k := make([]complex128, pw*ph)
	for y := 0; y < tg.H; y++ {
		for x, v := range tg.Pix[y*tg.W : (y+1)*tg.W] {
			k[y*pw+x] = complex(float64(v)-t.mean, 0)
		}
	}

	rows, cols := fourier.NewCmplxFFT(pw), fourier.NewCmplxFFT(ph)
	col := make([]complex128, ph)
	fft2(f, pw, ph, rows, cols, col, false)
	fft2(k, pw, ph, rows, cols, col, false)
	for i := range f {
		f[i] *= cmplx.Conj(k[i])
	}
	fft2(f, pw, ph, rows, cols, col, true)

	norm := float64(pw * ph)
	out := make([]float64, pw*ph)
	for i, c := range f {
		out[i] = real(c) / norm
	}
	return out, pw
}

// fft2 transforms a row-major pw x ph plane in place, unnormalized.
func fft2(data []complex128, pw, ph int, rows, cols *fourier.CmplxFFT, col []complex128, inverse bool) {
	for y := 0; y < ph; y++ {
		r := data[y*pw : (y+1)*pw]
		if inverse {
			rows.Sequence(r, r)
		} else {
			rows.Coefficients(r, r)
		}
	}
	for x := 0; x < pw; x++ {
		for y := 0; y < ph; y++ {
			col[y] = data[y*pw+x]
		}
		if inverse {
			cols.Sequence(col, col)
		} else {
			cols.Coefficients(col, col)
		}
		for y := 0; y < ph; y++ {
			data[y*pw+x] = col[y]
		}
	}
}

// fftSize is the smallest n >= v with no prime factor above 5.
func fftSize(v int) int {
	for n := max(v, 1); ; n++ {
		m := n
		for _, p := range []int{2, 3, 5} {
			for m%p == 0 {
				m /= p
			}
		}
		if m == 1 {
			return n
		}
	}
}

// Match looks for the reference pattern anywhere inside the candidate.
func Match(cand *Grid, ref *Reference, opts MatchOptions) (Verdict, error) {
	return matchPrepared(cand, ref, newMatchTemplate(ref.Grid, opts.WorkWidth), opts)
}

func matchPrepared(cand *Grid, ref *Reference, tmpl *matchTemplate, opts MatchOptions) (Verdict, error) {
	if cand.W < ref.W() || float64(cand.H) < opts.HeightTolerance*float64(ref.H()) {
		return Reject(ReasonUploadTooSmall, nil), nil
	}
	frame := cand
	if frame.H < ref.H() {
		// within tolerance but shorter: upscale so the full pattern fits
		frame = Resize(frame, scaled(frame.W, float64(ref.H())/float64(frame.H)), ref.H())
	}
	frame = Resize(frame, scaled(frame.W, tmpl.scale), scaled(frame.H, tmpl.scale))
	if frame.W < tmpl.grid.W || frame.H < tmpl.grid.H {
		return Reject(ReasonUploadTooSmall, nil), nil
	}

	res, err := tmpl.search(frame)
	if err != nil {
		return Verdict{}, err
	}
	score := round2(res.Score)
	log.Debug().Float64("ncc", res.Score).Int("x", res.X).Int("y", res.Y).Bool("fft", res.Spectral).Msg("template match")
	metrics := Metrics{MetricSimilarity: score}
	if score < opts.Threshold {
		return Reject(ReasonFormatMismatch, metrics), nil
	}
	return Accept(metrics), nil
}
