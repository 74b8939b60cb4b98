package gate

import (
	"bytes"
	"image"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	paper = 245
	ink   = 40
)

func fillRect(g *Grid, x0, y0, x1, y1 int, v uint8) {
	for y := max(0, y0); y < min(g.H, y1); y++ {
		for x := max(0, x0); x < min(g.W, x1); x++ {
			g.Pix[y*g.W+x] = v
		}
	}
}

func solidGrid(w, h int, v uint8) *Grid {
	g := NewGrid(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// receiptGrid draws a single-transaction detail view: a dark header band
// and five label/value rows on light paper.
func receiptGrid(w, h int) *Grid {
	g := solidGrid(w, h, paper)
	fw, fh := float64(w), float64(h)
	fillRect(g, 0, 0, w, int(0.07*fh), 60)
	rowStart, rowPitch, rowH := int(0.25*fh), int(0.11*fh), int(0.04*fh)
	for r := 0; r < 5; r++ {
		y0 := rowStart + r*rowPitch
		fillRect(g, int(0.15*fw), y0, int(0.45*fw), y0+rowH, ink)
		valueW := (0.08 + 0.04*float64(r)) * fw
		fillRect(g, int(0.60*fw), y0, int(0.60*fw+valueW), y0+rowH, ink)
	}
	return g
}

func noiseGrid(w, h int, seed int64) *Grid {
	rng := rand.New(rand.NewSource(seed))
	g := NewGrid(w, h)
	for i := range g.Pix {
		g.Pix[i] = uint8(rng.Intn(256))
	}
	return g
}

// stripes draws 2px ink bars every period pixels, horizontal or vertical.
func stripes(w, h, period int, vertical bool) *Grid {
	g := solidGrid(w, h, paper)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := y
			if vertical {
				pos = x
			}
			if pos%period < 2 {
				g.Pix[y*w+x] = ink
			}
		}
	}
	return g
}

// withGridLines returns a copy of g with 1px black lines every step pixels.
func withGridLines(g *Grid, step int) *Grid {
	out := &Grid{W: g.W, H: g.H, Pix: append([]uint8(nil), g.Pix...)}
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if x%step == 0 || y%step == 0 {
				out.Pix[y*g.W+x] = 0
			}
		}
	}
	return out
}

// embed places src at (ox, oy) on a paper canvas of w x h.
func embed(src *Grid, w, h, ox, oy int) *Grid {
	out := solidGrid(w, h, paper)
	for y := 0; y < src.H; y++ {
		copy(out.Pix[(oy+y)*w+ox:(oy+y)*w+ox+src.W], src.Pix[y*src.W:(y+1)*src.W])
	}
	return out
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testReference(t *testing.T) *Reference {
	t.Helper()
	ref, err := NewReference(receiptGrid(1000, 300), "test")
	require.NoError(t, err)
	return ref
}
