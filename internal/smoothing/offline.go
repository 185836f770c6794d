package smoothing

// solve runs the fixed number of Jacobi sweeps of
//
//	track[t] = (c[t] + λ Σ_d w(d) track[t+d] + β carry[t]) / (1 + λ Σ_d w(d) + β)
//
// starting from track = c. The β terms only apply where carry has an entry.
func solve(c, carry []float64, p Params, w Window) []float64 {
	n := len(c)
	track := append([]float64(nil), c...)
	if n == 0 {
		return track
	}
	next := make([]float64, n)

	for it := 0; it < p.Iterations; it++ {
		for t := 0; t < n; t++ {
			weighted, total := w.neighbours(track, t)
			alpha := c[t] + p.Lambda*weighted
			gamma := 1 + p.Lambda*total
			if t < len(carry) {
				alpha += p.Beta * carry[t]
				gamma += p.Beta
			}
			next[t] = divide(alpha, gamma, c[t])
		}
		track, next = next, track
	}
	return track
}

// Offline smooths a complete series against all of its samples at once. It
// returns the smoothed path and the number of non-finite inputs and outputs
// that were replaced with the preceding finite value.
func Offline(c []float64, p Params) ([]float64, int) {
	clean, replaced := carryForward(c)
	out := solve(clean, nil, p, NewWindow(p.WindowSize))
	return out, replaced + sanitize(out, clean)
}

// carryForward copies c, replacing each non-finite sample with the one before
// it, or zero at the start.
func carryForward(c []float64) ([]float64, int) {
	out := append([]float64(nil), c...)
	replaced := 0
	for t, v := range out {
		if finite(v) {
			continue
		}
		replaced++
		out[t] = 0
		if t > 0 {
			out[t] = out[t-1]
		}
	}
	return out, replaced
}

// sanitize replaces non-finite entries of out in place, preferring the
// previous output, then the raw sample, then zero.
func sanitize(out, raw []float64) int {
	replaced := 0
	for t, v := range out {
		if finite(v) {
			continue
		}
		replaced++
		switch {
		case t > 0:
			out[t] = out[t-1]
		case finite(raw[t]):
			out[t] = raw[t]
		default:
			out[t] = 0
		}
	}
	return replaced
}
