package smoothing

import "math"

// Window is the truncated Gaussian weight w(d) between samples d steps apart.
// It spans |d| <= size/2 and is zero at d = 0.
type Window struct {
	half    int
	weights []float64
}

func NewWindow(size int) Window {
	half := size / 2
	w := Window{half: half, weights: make([]float64, 2*half+1)}
	for d := -half; d <= half; d++ {
		if d == 0 {
			continue
		}
		w.weights[d+half] = math.Exp(-9 * float64(d*d) / float64(size*size))
	}
	return w
}

func (w Window) Half() int {
	return w.half
}

func (w Window) Weight(d int) float64 {
	if d < -w.half || d > w.half {
		return 0
	}
	return w.weights[d+w.half]
}

// neighbours returns Σ_d w(d)·track[t+d] and Σ_d w(d) over the neighbours of
// t that fall inside [0, len(track)).
func (w Window) neighbours(track []float64, t int) (weighted, total float64) {
	lo := max(t-w.half, 0)
	hi := min(t+w.half, len(track)-1)
	for s := lo; s <= hi; s++ {
		if s == t {
			continue
		}
		wt := w.weights[s-t+w.half]
		weighted += wt * track[s]
		total += wt
	}
	return weighted, total
}
