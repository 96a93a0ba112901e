package features

import "math"

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp        = 200.0 / 3
	melMinLogHz   = 1000.0
	melMinLogMel  = melMinLogHz / melFSp
	melLogStep    = 0.06875177742094912 // ln(6.4) / 27
	topDB         = 80.0
	deltaHalfSpan = 2
)

func hzToMel(f float64) float64 {
	if f < melMinLogHz {
		return f / melFSp
	}
	return melMinLogMel + math.Log(f/melMinLogHz)/melLogStep
}

func melToHz(m float64) float64 {
	if m < melMinLogMel {
		return m * melFSp
	}
	return melMinLogHz * math.Exp(melLogStep*(m-melMinLogMel))
}

// melFilterbank builds nMels area-normalised triangular filters over the
// FFT bins, spanning fmin..fmax (capped at Nyquist).
func melFilterbank(sampleRate, nfft, nMels int, fmin, fmax float64) [][]float64 {
	nyquist := float64(sampleRate) / 2
	if fmax > nyquist {
		fmax = nyquist
	}
	if fmin >= fmax {
		fmin = 0
	}

	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	melMin, melMax := hzToMel(fmin), hzToMel(fmax)
	points := make([]float64, nMels+2)
	for i := range points {
		points[i] = melToHz(melMin + (melMax-melMin)*float64(i)/float64(nMels+1))
	}

	weights := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lower, centre, upper := points[m], points[m+1], points[m+2]
		row := make([]float64, bins)
		norm := 2 / (upper - lower)
		for k, f := range fftFreqs {
			var w float64
			if f > lower && f <= centre && centre > lower {
				w = (f - lower) / (centre - lower)
			} else if f > centre && f < upper && upper > centre {
				w = (upper - f) / (upper - centre)
			}
			row[k] = w * norm
		}
		weights[m] = row
	}
	return weights
}

// melSpectrogram projects a [frame][bin] power spectrogram onto the mel
// filters, giving [frame][band].
func melSpectrogram(power [][]float64, filters [][]float64) [][]float64 {
	out := make([][]float64, len(power))
	for t, frame := range power {
		row := make([]float64, len(filters))
		for m, filter := range filters {
			var sum float64
			for k, w := range filter {
				if w != 0 {
					sum += w * frame[k]
				}
			}
			row[m] = sum
		}
		out[t] = row
	}
	return out
}

// logMel converts mel power to dB and clips everything more than topDB below
// the loudest cell.
func logMel(mel [][]float64) [][]float64 {
	out := make([][]float64, len(mel))
	maxDB := math.Inf(-1)
	for t, row := range mel {
		r := make([]float64, len(row))
		for m, v := range row {
			r[m] = powerToDB(v)
			if r[m] > maxDB {
				maxDB = r[m]
			}
		}
		out[t] = r
	}
	floor := maxDB - topDB
	for _, row := range out {
		for m := range row {
			if row[m] < floor {
				row[m] = floor
			}
		}
	}
	return out
}

// dctBasis returns the first n rows of an orthonormal type-II DCT matrix for
// inputs of length size.
func dctBasis(n, size int) [][]float64 {
	basis := make([][]float64, n)
	for k := range basis {
		scale := math.Sqrt(2 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1 / float64(size))
		}
		row := make([]float64, size)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(size)))
		}
		basis[k] = row
	}
	return basis
}

// mfcc returns an [coefficient][frame] matrix from a [frame][band] log-mel
// spectrogram.
func mfcc(logMel [][]float64, n int) Matrix {
	frames := len(logMel)
	out := make(Matrix, n)
	for c := range out {
		out[c] = make([]float64, frames)
	}
	if frames == 0 {
		return out
	}

	basis := dctBasis(n, len(logMel[0]))
	for t, row := range logMel {
		for c, b := range basis {
			var sum float64
			for i, v := range row {
				sum += b[i] * v
			}
			out[c][t] = sum
		}
	}
	return out
}

// delta computes regression time-derivatives of each row, repeating the
// edge frames so the output keeps the input's shape.
func delta(m Matrix) Matrix {
	var denom float64
	for n := 1; n <= deltaHalfSpan; n++ {
		denom += float64(n * n)
	}
	denom *= 2

	out := make(Matrix, len(m))
	for r, row := range m {
		frames := len(row)
		d := make([]float64, frames)
		for t := range row {
			var sum float64
			for n := 1; n <= deltaHalfSpan; n++ {
				next := row[clampIndex(t+n, frames)]
				prev := row[clampIndex(t-n, frames)]
				sum += float64(n) * (next - prev)
			}
			d[t] = sum / denom
		}
		out[r] = d
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
