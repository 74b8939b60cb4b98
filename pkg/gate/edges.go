package gate

import "math"

const (
	tan22 = 0.41421356 // tan(22.5°)
	tan67 = 2.41421356 // tan(67.5°)
)

// gradient directions, named after the neighbour pair compared during
// non-maximum suppression
const (
	dirHorizontal = iota
	dirDiagonalDown
	dirVertical
	dirDiagonalUp
)

// Canny computes a binary edge map (0 or 255) from Sobel gradients with L1
// magnitude, non-maximum suppression and hysteresis between low and high.
// The outermost ring of pixels never carries an edge.
func Canny(g *Grid, low, high float64) *Grid {
	w, h := g.W, g.H
	out := NewGrid(w, h)
	if w < 3 || h < 3 {
		return out
	}
	if low > high {
		low, high = high, low
	}

	mag := make([]float64, w*h)
	dir := make([]uint8, w*h)
	p := g.Pix
	for y := 1; y < h-1; y++ {
		up, mid, down := (y-1)*w, y*w, (y+1)*w
		for x := 1; x < w-1; x++ {
			gx := float64(int(p[up+x+1])+2*int(p[mid+x+1])+int(p[down+x+1])) -
				float64(int(p[up+x-1])+2*int(p[mid+x-1])+int(p[down+x-1]))
			gy := float64(int(p[down+x-1])+2*int(p[down+x])+int(p[down+x+1])) -
				float64(int(p[up+x-1])+2*int(p[up+x])+int(p[up+x+1]))
			ax, ay := math.Abs(gx), math.Abs(gy)
			mag[mid+x] = ax + ay
			switch {
			case ay <= ax*tan22:
				dir[mid+x] = dirHorizontal
			case ay > ax*tan67:
				dir[mid+x] = dirVertical
			case gx*gy > 0:
				dir[mid+x] = dirDiagonalDown
			default:
				dir[mid+x] = dirDiagonalUp
			}
		}
	}

	// 0 = none, 1 = weak candidate, 2 = strong
	state := make([]uint8, w*h)
	var stack []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			var before, after int
			switch dir[i] {
			case dirHorizontal:
				before, after = i-1, i+1
			case dirVertical:
				before, after = i-w, i+w
			case dirDiagonalDown:
				before, after = i-w-1, i+w+1
			default:
				before, after = i-w+1, i+w-1
			}
			// ties keep the later pixel so a plateau yields a single edge
			if m < mag[before] || m <= mag[after] {
				continue
			}
			if m > high {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out.Pix[i] = 255
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == 1 {
					state[j] = 2
					stack = append(stack, j)
				}
			}
		}
	}
	return out
}
