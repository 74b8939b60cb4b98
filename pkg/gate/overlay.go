package gate

import "gonum.org/v1/gonum/stat"

// EdgeDensity is the mean intensity of the Canny edge map of roi, in [0,255].
func EdgeDensity(roi *Grid, low, high float64) float64 {
	edges := Canny(roi, low, high)
	return stat.Mean(edges.Floats(), nil)
}

// HasOverlay reports whether roi carries more edge energy than a clean
// capture should: drawn annotations, UI chrome and pop-ups all add edges the
// reference does not have. The measured density is returned alongside.
func HasOverlay(roi *Grid, low, high, limit float64) (bool, float64) {
	d := EdgeDensity(roi, low, high)
	return d > limit, d
}
