package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

type containerInfo struct {
	sampleRate int
	channels   int
	bitDepth   int
	frames     int
}

// decoded is a mono buffer straight out of a decoder, before any resampling.
type decoded struct {
	samples    []float64
	sampleRate int
	channels   int
}

// nativeDecoder reports whether beep can decode format without ffmpeg.
func nativeDecoder(format Format) bool {
	switch format {
	case FormatWAV, FormatFLAC, FormatMP3, FormatOGG:
		return true
	}
	return false
}

func openBeep(data []byte, format Format) (beep.StreamSeekCloser, beep.Format, error) {
	r := bytes.NewReader(data)
	switch format {
	case FormatWAV:
		return wav.Decode(r)
	case FormatFLAC:
		return flac.Decode(r)
	case FormatMP3:
		return mp3.Decode(io.NopCloser(r))
	case FormatOGG:
		return vorbis.Decode(io.NopCloser(r))
	}
	return nil, beep.Format{}, fmt.Errorf("%w: no native decoder for %s", ErrUnsupportedFormat, format)
}

func probeContainer(data []byte, format Format) (containerInfo, error) {
	if !nativeDecoder(format) {
		return containerInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	stream, f, err := openBeep(data, format)
	if err != nil {
		return containerInfo{}, err
	}
	defer stream.Close()

	return containerInfo{
		sampleRate: int(f.SampleRate),
		channels:   f.NumChannels,
		bitDepth:   f.Precision * 8,
		frames:     stream.Len(),
	}, nil
}

// decodeNative decodes with beep and folds the stereo frames to mono by mean.
// beep duplicates mono sources into both channels, so the mean is exact there.
func decodeNative(ctx context.Context, data []byte, format Format) (*decoded, error) {
	stream, f, err := openBeep(data, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer stream.Close()

	samples := make([]float64, 0, max(stream.Len(), 0))
	buf := make([][2]float64, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, ok := stream.Stream(buf)
		for i := 0; i < n; i++ {
			samples = append(samples, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &decoded{samples: samples, sampleRate: int(f.SampleRate), channels: f.NumChannels}, nil
}

// CheckFFmpegAvailable reports whether the ffmpeg and ffprobe binaries are on PATH.
func CheckFFmpegAvailable() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", bin, err)
		}
	}
	return nil
}

// decodeFFmpeg transcodes formats beep cannot read into mono float32 PCM at
// the source rate. ffmpeg's stereo-to-mono downmix averages the channels.
func decodeFFmpeg(ctx context.Context, path string, format Format) (*decoded, error) {
	if err := CheckFFmpegAvailable(); err != nil {
		return nil, fmt.Errorf("%w: %s needs ffmpeg (%v)", ErrUnsupportedFormat, format, err)
	}

	probe := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels", "-of", "csv=p=0", path)
	out, err := probe.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v", ErrDecode, err)
	}
	sampleRate, channels, err := parseProbe(string(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", "-v", "error", "-i", path,
		"-f", "f32le", "-acodec", "pcm_f32le", "-ac", "1", "pipe:1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecode, err, strings.TrimSpace(stderr.String()))
	}

	samples := make([]float64, len(raw)/4)
	for i := range samples {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return &decoded{samples: samples, sampleRate: sampleRate, channels: channels}, nil
}

func parseProbe(out string) (int, int, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected ffprobe output %q", line)
	}
	sampleRate, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad sample rate %q", parts[0])
	}
	channels, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("bad channel count %q", parts[1])
	}
	return sampleRate, channels, nil
}

// resample converts a mono buffer between rates with beep's resampler.
func resample(samples []float64, from, to, quality int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}

	pos := 0
	source := beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := copy2(buf, samples[pos:])
		pos += n
		return n, true
	})

	resampler := beep.Resample(quality, beep.SampleRate(from), beep.SampleRate(to), source)
	expected := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	out := make([]float64, 0, expected)
	buf := make([][2]float64, 4096)
	for len(out) < expected {
		n, ok := resampler.Stream(buf)
		for i := 0; i < n && len(out) < expected; i++ {
			out = append(out, buf[i][0])
		}
		if !ok || n == 0 {
			break
		}
	}
	for len(out) < expected {
		out = append(out, 0)
	}
	return out
}

func copy2(dst [][2]float64, src []float64) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i][0] = src[i]
		dst[i][1] = src[i]
	}
	return n
}

// WriteWAV stores a mono buffer as 16-bit PCM, mainly for inspecting the
// preprocessed signal the extractor saw.
func WriteWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	pos := 0
	source := beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := copy2(buf, samples[pos:])
		pos += n
		return n, true
	})
	return wav.Encode(w, source, beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: 1, Precision: 2})
}
