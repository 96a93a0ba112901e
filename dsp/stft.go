package dsp

import (
	"errors"
	"math"
)

// Spectrogram is a centred short-time Fourier transform laid out as
// Frames[t][k] for frame t and frequency bin k.
type Spectrogram struct {
	NFFT   int
	Hop    int
	Length int
	Frames [][]complex128
}

// FrameCount is the number of centred frames for a signal of n samples.
func FrameCount(n, hop int) int {
	if hop <= 0 {
		return 0
	}
	return 1 + n/hop
}

// STFT computes a centred, Hann-windowed transform. The signal is zero padded
// by nfft/2 on both sides so frame t is centred on sample t*hop.
func STFT(signal []float64, nfft, hop int) (*Spectrogram, error) {
	if nfft < 2 || hop <= 0 {
		return nil, errors.New("invalid stft parameters")
	}

	pad := nfft / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	frameCount := FrameCount(len(signal), hop)
	window := Hann(nfft)
	fft := NewFFT(nfft)
	buf := make([]float64, nfft)

	frames := make([][]complex128, frameCount)
	for t := 0; t < frameCount; t++ {
		start := t * hop
		for i := 0; i < nfft; i++ {
			idx := start + i
			if idx < len(padded) {
				buf[i] = padded[idx] * window[i]
			} else {
				buf[i] = 0
			}
		}
		frames[t] = fft.Forward(nil, buf)
	}

	return &Spectrogram{NFFT: nfft, Hop: hop, Length: len(signal), Frames: frames}, nil
}

// Bins returns the number of frequency bins per frame.
func (s *Spectrogram) Bins() int { return s.NFFT/2 + 1 }

// Magnitude returns |X| per frame and bin.
func (s *Spectrogram) Magnitude() [][]float64 {
	out := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		row := make([]float64, len(frame))
		for k, c := range frame {
			row[k] = math.Hypot(real(c), imag(c))
		}
		out[t] = row
	}
	return out
}

// Power returns |X|^2 per frame and bin.
func (s *Spectrogram) Power() [][]float64 {
	out := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		row := make([]float64, len(frame))
		for k, c := range frame {
			row[k] = real(c)*real(c) + imag(c)*imag(c)
		}
		out[t] = row
	}
	return out
}

// Masked returns a copy of the spectrogram with every bin scaled by mask.
func (s *Spectrogram) Masked(mask [][]float64) *Spectrogram {
	frames := make([][]complex128, len(s.Frames))
	for t, frame := range s.Frames {
		row := make([]complex128, len(frame))
		for k, c := range frame {
			row[k] = c * complex(mask[t][k], 0)
		}
		frames[t] = row
	}
	return &Spectrogram{NFFT: s.NFFT, Hop: s.Hop, Length: s.Length, Frames: frames}
}

// ISTFT inverts a centred spectrogram by weighted overlap-add, trimming the
// centre padding and returning exactly s.Length samples.
func ISTFT(s *Spectrogram) []float64 {
	nfft, hop := s.NFFT, s.Hop
	frameCount := len(s.Frames)
	total := nfft + hop*(frameCount-1)
	if frameCount == 0 {
		total = nfft
	}

	out := make([]float64, total)
	norm := make([]float64, total)
	window := Hann(nfft)
	fft := NewFFT(nfft)
	buf := make([]float64, nfft)

	for t, frame := range s.Frames {
		buf = fft.Inverse(buf, frame)
		start := t * hop
		for i := 0; i < nfft; i++ {
			out[start+i] += buf[i] * window[i]
			norm[start+i] += window[i] * window[i]
		}
	}

	for i := range out {
		if norm[i] > 1e-10 {
			out[i] /= norm[i]
		}
	}

	pad := nfft / 2
	result := make([]float64, s.Length)
	for i := range result {
		if pad+i < len(out) {
			result[i] = out[pad+i]
		}
	}
	return result
}
