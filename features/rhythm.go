package features

// Rhythm analysis
//
//  1. Onset envelope: positive spectral flux of the log-mel spectrogram,
//     averaged over bands. The frame before the first is taken at the
//     spectrogram's floor, so audio that starts loud starts with an onset.
//  2. Tempo: autocorrelation of the mean-removed envelope over lags for
//     60..200 BPM. A lag counts only if it is a local maximum with at least
//     10% of the zero-lag energy; without one there is no periodicity and
//     the tempo defaults to 120 BPM with no beats. Near-equal candidates are
//     resolved towards the median inter-onset interval, which settles most
//     half/double tempo ambiguity.
//  3. Beats: the phase whose comb of beat positions collects the most
//     envelope energy.
//  4. Onsets: peak picking on the normalised envelope, each peak moved back
//     to the preceding envelope minimum.
//  5. Pattern: onsets placed on a 16-step grid per 4/4 bar anchored at the
//     first beat, summarised as downbeat, backbeat and off-beat mass plus
//     syncopation.

import (
	"math"
	"sort"
)

const (
	defaultTempo       = 120.0
	minTempo           = 60.0
	maxTempo           = 200.0
	periodicityFloor   = 0.1
	candidateTolerance = 0.9
	gridSteps          = 16
	timeSignature      = "4/4"
	silenceDB          = -100.0
)

// onsetEnvelope computes the positive flux between consecutive log-mel frames.
func onsetEnvelope(logMel [][]float64) []float64 {
	env := make([]float64, len(logMel))
	if len(logMel) == 0 {
		return env
	}

	maxDB := math.Inf(-1)
	for _, row := range logMel {
		for _, v := range row {
			maxDB = math.Max(maxDB, v)
		}
	}
	floor := math.Max(maxDB-topDB, silenceDB)

	bands := len(logMel[0])
	prev := make([]float64, bands)
	for m := range prev {
		prev[m] = floor
	}
	for t, row := range logMel {
		var sum float64
		for m, v := range row {
			if d := v - prev[m]; d > 0 {
				sum += d
			}
		}
		env[t] = sum / float64(bands)
		prev = row
	}
	return env
}

type tempoEstimate struct {
	bpm      float64
	period   float64
	periodic bool
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func medianInterval(frames []int) float64 {
	if len(frames) < 2 {
		return 0
	}
	diffs := make([]float64, len(frames)-1)
	for i := 1; i < len(frames); i++ {
		diffs[i-1] = float64(frames[i] - frames[i-1])
	}
	return median(diffs)
}

// estimateTempo picks the dominant beat period of env in frames.
func estimateTempo(env []float64, fps float64, onsets []int) tempoEstimate {
	fallback := tempoEstimate{bpm: defaultTempo, period: 60 * fps / defaultTempo}

	minLag := int(math.Floor(60 * fps / maxTempo))
	maxLag := int(math.Ceil(60 * fps / minTempo))
	if minLag < 1 {
		minLag = 1
	}
	if maxLag > len(env)-2 {
		maxLag = len(env) - 2
	}
	if maxLag <= minLag {
		return fallback
	}

	var mean float64
	for _, v := range env {
		mean += v
	}
	mean /= float64(len(env))
	centred := make([]float64, len(env))
	for i, v := range env {
		centred[i] = v - mean
	}

	ac := make([]float64, maxLag+2)
	for lag := range ac {
		var sum float64
		for i := 0; i+lag < len(centred); i++ {
			sum += centred[i] * centred[i+lag]
		}
		ac[lag] = sum
	}
	if ac[0] <= 0 {
		return fallback
	}
	for lag := range ac {
		ac[lag] /= ac[0]
	}

	var candidates []int
	best := -1
	for lag := minLag; lag <= maxLag; lag++ {
		if ac[lag] < periodicityFloor || ac[lag] < ac[lag-1] || ac[lag] < ac[lag+1] {
			continue
		}
		candidates = append(candidates, lag)
		if best < 0 || ac[lag] > ac[best] {
			best = lag
		}
	}
	if best < 0 {
		return fallback
	}

	chosen := best
	if ioi := medianInterval(onsets); ioi > 0 {
		bestDistance := math.Inf(1)
		for _, lag := range candidates {
			if ac[lag] < candidateTolerance*ac[best] {
				continue
			}
			distance := math.Abs(float64(lag) - ioi)
			if distance < bestDistance {
				bestDistance = distance
				chosen = lag
			}
		}
	}

	period := float64(chosen)
	denom := ac[chosen-1] - 2*ac[chosen] + ac[chosen+1]
	if denom != 0 {
		shift := 0.5 * (ac[chosen-1] - ac[chosen+1]) / denom
		if math.Abs(shift) <= 0.5 {
			period += shift
		}
	}

	return tempoEstimate{bpm: 60 * fps / period, period: period, periodic: true}
}

// trackBeats aligns a comb of the given period with the envelope.
func trackBeats(env []float64, period float64) []int {
	if period <= 0 || len(env) == 0 {
		return nil
	}

	comb := func(phase int) ([]int, float64) {
		var frames []int
		var score float64
		for k := 0; ; k++ {
			f := int(math.Round(float64(phase) + float64(k)*period))
			if f >= len(env) {
				break
			}
			frames = append(frames, f)
			score += env[f]
		}
		return frames, score
	}

	var best []int
	bestScore := math.Inf(-1)
	for phase := 0; phase < int(math.Ceil(period)) && phase < len(env); phase++ {
		frames, score := comb(phase)
		if score > bestScore {
			best, bestScore = frames, score
		}
	}
	return best
}

// detectOnsets peak-picks the envelope and backtracks each peak.
func detectOnsets(env []float64, fps float64) []int {
	n := len(env)
	if n == 0 {
		return nil
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range env {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo <= 0 {
		return nil
	}
	norm := make([]float64, n)
	for i, v := range env {
		norm[i] = (v - lo) / (hi - lo)
	}

	span := func(seconds float64) int { return int(seconds * fps) }
	preMax := max(span(0.03), 1)
	postMax := preMax
	preAvg := span(0.10)
	postAvg := span(0.10) + 1
	wait := span(0.03)
	const delta = 0.07

	var peaks []int
	last := -wait - 1
	for t := 0; t < n; t++ {
		isMax := true
		for i := max(0, t-preMax); i <= min(n-1, t+postMax); i++ {
			if norm[i] > norm[t] {
				isMax = false
				break
			}
		}
		if !isMax {
			continue
		}

		var sum float64
		from, to := max(0, t-preAvg), min(n, t+postAvg)
		for i := from; i < to; i++ {
			sum += norm[i]
		}
		if norm[t] < sum/float64(to-from)+delta {
			continue
		}
		if t-last <= wait {
			continue
		}
		peaks = append(peaks, t)
		last = t
	}

	onsets := make([]int, 0, len(peaks))
	for _, p := range peaks {
		i := p
		for i > 0 && env[i-1] < env[i] {
			i--
		}
		if len(onsets) == 0 || onsets[len(onsets)-1] != i {
			onsets = append(onsets, i)
		}
	}
	return onsets
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// rhythmPattern folds events onto a 16-step bar grid and summarises it.
// Descriptor values are downbeat, backbeat and off-beat mass (summing to 1)
// followed by syncopation, the mean absolute step-to-step change.
func rhythmPattern(onsetTimes, beatTimes []float64, tempo float64) ([gridSteps]float64, [4]float64) {
	var pattern [gridSteps]float64
	events := onsetTimes
	if len(events) == 0 {
		events = beatTimes
	}
	if len(events) == 0 {
		for i := range pattern {
			pattern[i] = 1.0 / gridSteps
		}
		return pattern, [4]float64{0.125, 0.125, 0.75, 0}
	}

	anchor := 0.0
	if len(beatTimes) > 0 {
		anchor = beatTimes[0]
	}
	beatPeriod := 60 / tempo
	if len(beatTimes) >= 2 {
		diffs := make([]float64, len(beatTimes)-1)
		for i := 1; i < len(beatTimes); i++ {
			diffs[i-1] = beatTimes[i] - beatTimes[i-1]
		}
		if m := median(diffs); m > 0 {
			beatPeriod = m
		}
	}
	step := beatPeriod / 4

	bars := map[int]*[gridSteps]float64{}
	var barOrder []int
	for _, t := range events {
		idx := int(math.Round((t - anchor) / step))
		bar := floorDiv(idx, gridSteps)
		pos := idx - bar*gridSteps
		counts, ok := bars[bar]
		if !ok {
			counts = &[gridSteps]float64{}
			bars[bar] = counts
			barOrder = append(barOrder, bar)
		}
		counts[pos]++
		pattern[pos]++
	}
	sort.Ints(barOrder)

	for i := range pattern {
		pattern[i] /= float64(len(events))
	}

	var down, back, off float64
	for _, bar := range barOrder {
		c := bars[bar]
		var total float64
		for _, v := range c {
			total += v
		}
		d := (c[0] + c[8]) / total
		b := (c[4] + c[12]) / total
		down += d
		back += b
		off += (total - c[0] - c[8] - c[4] - c[12]) / total
	}
	sum := down + back + off
	down, back, off = down/sum, back/sum, off/sum

	var sync float64
	for i := 1; i < gridSteps; i++ {
		sync += math.Abs(pattern[i] - pattern[i-1])
	}
	sync /= gridSteps - 1

	return pattern, [4]float64{down, back, off, sync}
}

func framesToTimes(frames []int, hop, sampleRate int) Series {
	out := make(Series, len(frames))
	for i, f := range frames {
		out[i] = float64(f*hop) / float64(sampleRate)
	}
	return out
}

func computeRhythmic(env []float64, hop, sampleRate int) *Rhythmic {
	fps := float64(sampleRate) / float64(hop)
	onsets := detectOnsets(env, fps)
	tempo := estimateTempo(env, fps, onsets)

	var beats []int
	if tempo.periodic {
		beats = trackBeats(env, tempo.period)
	}

	r := &Rhythmic{
		Tempo:         Float(tempo.bpm),
		BeatTimes:     framesToTimes(beats, hop, sampleRate),
		OnsetTimes:    framesToTimes(onsets, hop, sampleRate),
		TimeSignature: timeSignature,
	}

	pattern, descriptor := rhythmPattern(r.OnsetTimes, r.BeatTimes, tempo.bpm)
	for i, v := range pattern {
		r.RhythmPattern[i] = Float(v)
	}
	for i, v := range descriptor {
		r.RhythmDescriptor[i] = Float(v)
	}
	return r
}
