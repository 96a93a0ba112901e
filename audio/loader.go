package audio

// Audio Loader
//
// Load turns a path into a mono buffer ready for feature extraction:
//
//  1. stat the file and detect its container
//  2. read the bytes once and hash them (memoised per path, size and mtime)
//  3. decode with beep, or ffmpeg for containers beep cannot read
//  4. fold to mono by mean, resample per strategy, then Preprocess
//
// Strategies trade accuracy for speed. fast always decodes at 22 050 Hz with
// the cheapest resampler; balanced keeps the source rate unless a target is
// given; quality and streaming use the best resampler beep offers at a
// reasonable cost. streaming reads the same way as quality for now.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"samplemind/utils"
)

// Strategy selects the decode and resample trade-off.
type Strategy string

const (
	StrategyFast      Strategy = "fast"
	StrategyBalanced  Strategy = "balanced"
	StrategyQuality   Strategy = "quality"
	StrategyStreaming Strategy = "streaming"
)

const fastSampleRate = 22050

// ParseStrategy maps a name onto a Strategy, defaulting to balanced.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case StrategyFast:
		return StrategyFast, nil
	case StrategyBalanced, "":
		return StrategyBalanced, nil
	case StrategyQuality:
		return StrategyQuality, nil
	case StrategyStreaming:
		return StrategyStreaming, nil
	}
	return "", fmt.Errorf("unknown loading strategy %q", name)
}

func (s Strategy) resampleQuality() int {
	switch s {
	case StrategyFast:
		return 1
	case StrategyQuality, StrategyStreaming:
		return 6
	default:
		return 4
	}
}

// LoadOptions configures one load. TargetRate 0 keeps the source rate.
type LoadOptions struct {
	Strategy   Strategy
	TargetRate int
}

// Loaded is a decoded, normalised mono buffer.
type Loaded struct {
	Samples    []float64
	SampleRate int
	Channels   int
	Peak       float64
	RMS        float64
	Strategy   Strategy
	Normalized bool
	Duration   float64
	Source     *Source
}

// Loader decodes files and remembers their content hashes.
type Loader struct {
	hashes *hashMemo
}

func NewLoader() *Loader {
	return &Loader{hashes: newHashMemo()}
}

// Stat resolves path and returns its absolute form and file info, mapping a
// missing file onto ErrFileNotFound.
func Stat(path string) (string, fs.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s is a directory", ErrIO, path)
	}
	return abs, info, nil
}

// Hash returns the content hash of the file at abs, reusing the memoised
// value while its size and mtime are unchanged.
func (l *Loader) Hash(abs string, info fs.FileInfo) (string, error) {
	if hash, ok := l.hashes.get(abs, info.Size(), info.ModTime()); ok {
		return hash, nil
	}
	hash, err := utils.HashFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, abs)
		}
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	l.hashes.put(abs, info.Size(), info.ModTime(), hash)
	return hash, nil
}

// Load reads, decodes and preprocesses the file at path.
func (l *Loader) Load(ctx context.Context, path string, opts LoadOptions) (*Loaded, error) {
	logger := utils.GetLogger()
	if opts.Strategy == "" {
		opts.Strategy = StrategyBalanced
	}

	abs, info, err := Stat(path)
	if err != nil {
		return nil, err
	}

	format, err := DetectFormat(abs)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	hash, ok := l.hashes.get(abs, info.Size(), info.ModTime())
	if !ok {
		sum := sha256.Sum256(data)
		hash = hex.EncodeToString(sum[:])
		l.hashes.put(abs, info.Size(), info.ModTime(), hash)
	}

	started := time.Now()
	var dec *decoded
	if nativeDecoder(format) {
		dec, err = decodeNative(ctx, data, format)
	} else {
		dec, err = decodeFFmpeg(ctx, abs, format)
	}
	if err != nil {
		return nil, err
	}
	if dec.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrDecode, dec.sampleRate)
	}

	targetRate := opts.TargetRate
	if opts.Strategy == StrategyFast {
		targetRate = fastSampleRate
	}
	samples := dec.samples
	sampleRate := dec.sampleRate
	if targetRate > 0 && targetRate != sampleRate {
		samples = resample(samples, sampleRate, targetRate, opts.Strategy.resampleQuality())
		sampleRate = targetRate
	}

	processed, normalized := Preprocess(samples, sampleRate)

	source := &Source{
		Path:        abs,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentHash: hash,
		Format:      format,
		Metadata:    ExtractMetadata(ctx, abs, format),
	}

	loaded := &Loaded{
		Samples:    processed,
		SampleRate: sampleRate,
		Channels:   dec.channels,
		Peak:       Peak(processed),
		RMS:        RMS(processed),
		Strategy:   opts.Strategy,
		Normalized: normalized,
		Duration:   float64(len(processed)) / float64(sampleRate),
		Source:     source,
	}

	logger.DebugContext(ctx, "loaded audio",
		slog.String("path", abs),
		slog.String("format", string(format)),
		slog.Int("sampleRate", sampleRate),
		slog.Int("channels", dec.channels),
		slog.Float64("duration", loaded.Duration),
		slog.Duration("decode", time.Since(started)),
	)
	return loaded, nil
}
