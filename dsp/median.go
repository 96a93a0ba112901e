package dsp

import "sort"

// reflectIndex maps i into [0,n) using half-sample symmetric reflection
// (d c b a | a b c d | d c b a).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// MedianFilter1D applies a running median of width kernel with reflected
// edges. The window is kept sorted and updated incrementally, so each output
// costs O(kernel) instead of a full sort.
func MedianFilter1D(x []float64, kernel int) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	if kernel < 1 {
		kernel = 1
	}
	if kernel%2 == 0 {
		kernel++
	}
	half := kernel / 2

	window := make([]float64, kernel)
	for j := 0; j < kernel; j++ {
		window[j] = x[reflectIndex(j-half, len(x))]
	}
	sort.Float64s(window)
	out[0] = window[half]

	for i := 1; i < len(x); i++ {
		outgoing := x[reflectIndex(i-1-half, len(x))]
		incoming := x[reflectIndex(i+half, len(x))]
		if outgoing != incoming {
			pos := sort.SearchFloat64s(window, outgoing)
			copy(window[pos:], window[pos+1:])
			window = window[:kernel-1]
			pos = sort.SearchFloat64s(window, incoming)
			window = append(window, 0)
			copy(window[pos+1:], window[pos:])
			window[pos] = incoming
		}
		out[i] = window[half]
	}
	return out
}

// MedianFilterTime filters every bin of a [frame][bin] matrix along time.
func MedianFilterTime(m [][]float64, kernel int) [][]float64 {
	frames := len(m)
	if frames == 0 {
		return nil
	}
	bins := len(m[0])
	out := make([][]float64, frames)
	for t := range out {
		out[t] = make([]float64, bins)
	}

	column := make([]float64, frames)
	for k := 0; k < bins; k++ {
		for t := 0; t < frames; t++ {
			column[t] = m[t][k]
		}
		filtered := MedianFilter1D(column, kernel)
		for t := 0; t < frames; t++ {
			out[t][k] = filtered[t]
		}
	}
	return out
}

// MedianFilterFreq filters every frame of a [frame][bin] matrix along frequency.
func MedianFilterFreq(m [][]float64, kernel int) [][]float64 {
	out := make([][]float64, len(m))
	for t, row := range m {
		out[t] = MedianFilter1D(row, kernel)
	}
	return out
}
