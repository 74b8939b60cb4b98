package gate

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	// extra upload formats; jpeg/png/gif/bmp/tiff are registered by imaging
	_ "github.com/spakin/netpbm"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the declared canvas size accepted by Decode.
const DefaultMaxPixels = 40_000_000

// Grid is a single-channel 8-bit intensity image. A Grid is never modified
// after construction; every filter returns a new Grid.
type Grid struct {
	W, H int
	Pix  []uint8
}

// NewGrid returns a zero-filled grid.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, Pix: make([]uint8, w*h)}
}

// At returns the intensity at (x, y).
func (g *Grid) At(x, y int) uint8 {
	return g.Pix[y*g.W+x]
}

// Empty reports whether the grid has zero area.
func (g *Grid) Empty() bool {
	return g == nil || g.W <= 0 || g.H <= 0
}

// Ratio is width divided by height.
func (g *Grid) Ratio() float64 {
	if g.H == 0 {
		return 0
	}
	return float64(g.W) / float64(g.H)
}

// Image exposes the grid as an *image.Gray sharing the same pixels so it can
// be fed to imaging filters. Callers must not write to it.
func (g *Grid) Image() *image.Gray {
	return &image.Gray{Pix: g.Pix, Stride: g.W, Rect: image.Rect(0, 0, g.W, g.H)}
}

// Floats returns the pixels as float64 samples in row-major order.
func (g *Grid) Floats() []float64 {
	out := make([]float64, len(g.Pix))
	for i, v := range g.Pix {
		out[i] = float64(v)
	}
	return out
}

// GridFromImage renders any image to luminance. imaging.Grayscale uses the
// ITU-R 601 weights, the same ones a grayscale JPEG decode would produce.
func GridFromImage(img image.Image) *Grid {
	b := img.Bounds()
	if gray, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) && gray.Stride == b.Dx() {
		pix := make([]uint8, b.Dx()*b.Dy())
		copy(pix, gray.Pix)
		return &Grid{W: b.Dx(), H: b.Dy(), Pix: pix}
	}
	return fromNRGBA(imaging.Grayscale(img))
}

// fromNRGBA takes the red channel of an already gray NRGBA image.
func fromNRGBA(n *image.NRGBA) *Grid {
	w, h := n.Rect.Dx(), n.Rect.Dy()
	g := NewGrid(w, h)
	for y := 0; y < h; y++ {
		row := n.Pix[y*n.Stride : y*n.Stride+w*4]
		for x := 0; x < w; x++ {
			g.Pix[y*w+x] = row[x*4]
		}
	}
	return g
}

// Decode turns raw upload bytes into a luminance grid. Any parse failure,
// an oversized canvas, or a zero-area result yields an error wrapping
// ErrImageRead.
func Decode(data []byte, maxPixels int) (*Grid, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrImageRead)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageRead, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero-area %s", ErrImageRead, format)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageRead, cfg.Width, cfg.Height, maxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageRead, err)
	}
	g := GridFromImage(img)
	if g.Empty() {
		return nil, fmt.Errorf("%w: zero-area output", ErrImageRead)
	}
	return g, nil
}
