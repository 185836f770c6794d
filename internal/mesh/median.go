package mesh

import "sort"

// upperMedian sorts values in place and returns the element at len/2, which
// for even lengths is the upper of the two middle values.
func upperMedian(values []float64) float64 {
	sort.Float64s(values)
	return values[len(values)/2]
}

// MedianFilter3 applies a 3x3 median over a row-major rows x cols grid,
// replicating edge values beyond the border.
func MedianFilter3(values []float64, rows, cols int) []float64 {
	out := make([]float64, len(values))
	window := make([]float64, 9)

	clamp := func(v, hi int) int {
		return min(max(v, 0), hi-1)
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			k := 0
			for dr := -1; dr <= 1; dr++ {
				rr := clamp(r+dr, rows)
				for dc := -1; dc <= 1; dc++ {
					window[k] = values[rr*cols+clamp(c+dc, cols)]
					k++
				}
			}
			out[r*cols+c] = upperMedian(window)
		}
	}
	return out
}
