package gate

import (
	"fmt"
	"os"
	"sync"
)

// Reference is the clean capture every upload is compared against. It is
// loaded once and shared read-only by all requests; derived forms are
// memoized per blur strength.
type Reference struct {
	Grid   *Grid
	Source string

	mu      sync.Mutex
	blurred map[float64]*Grid
}

// NewReference wraps an already decoded grid.
func NewReference(g *Grid, source string) (*Reference, error) {
	if g.Empty() {
		return nil, fmt.Errorf("%w: empty grid", ErrNoReference)
	}
	return &Reference{Grid: g, Source: source, blurred: map[float64]*Grid{}}, nil
}

// LoadReference reads and decodes the reference asset at path.
func LoadReference(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoReference, err)
	}
	g, err := Decode(data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoReference, path, err)
	}
	return NewReference(g, path)
}

// W is the reference canvas width.
func (r *Reference) W() int { return r.Grid.W }

// H is the reference canvas height.
func (r *Reference) H() int { return r.Grid.H }

// Blurred returns the reference smoothed with the given sigma, computing it
// on first use.
func (r *Reference) Blurred(sigma float64) *Grid {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.blurred[sigma]; ok {
		return g
	}
	g := Smooth(r.Grid, sigma)
	r.blurred[sigma] = g
	return g
}
