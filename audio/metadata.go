package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"samplemind/utils"

	"github.com/dhowden/tag"
	"github.com/mdobak/go-xerrors"
)

// Metadata is the best-effort tag and container information of a file.
// Every field is optional; an unreadable file yields the zero value.
type Metadata struct {
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Album      string  `json:"album,omitempty"`
	Genre      string  `json:"genre,omitempty"`
	Year       int     `json:"year,omitempty"`
	Track      int     `json:"track,omitempty"`
	TagFormat  string  `json:"tag_format,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Bitrate    int     `json:"bitrate,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	BitDepth   int     `json:"bit_depth,omitempty"`
}

// raw tag keys per convention, tried in order when the typed accessor is empty
var rawTagKeys = map[string][]string{
	"title":  {"TIT2", "TT2", "TITLE", "title", "\xa9nam"},
	"artist": {"TPE1", "TP1", "ARTIST", "artist", "\xa9ART"},
	"album":  {"TALB", "TAL", "ALBUM", "album", "\xa9alb"},
	"genre":  {"TCON", "TCO", "GENRE", "genre", "\xa9gen"},
}

// ExtractMetadata reads tags and container info for path. It never fails:
// problems are logged and whatever was gathered so far is returned.
func ExtractMetadata(ctx context.Context, path string, format Format) (meta Metadata) {
	logger := utils.GetLogger()
	defer func() {
		// tag and frame parsers index into untrusted bytes
		if r := recover(); r != nil {
			logger.WarnContext(ctx, "metadata parser panicked", slog.String("path", path), slog.Any("error", fmt.Errorf("%v", r)))
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.WarnContext(ctx, "metadata read failed", slog.String("path", path), slog.Any("error", xerrors.New(err)))
		return meta
	}

	readTags(ctx, data, &meta)

	info, err := probeContainer(data, format)
	if err != nil {
		logger.DebugContext(ctx, "container probe unavailable", slog.String("path", path), slog.Any("error", err))
		return meta
	}
	meta.SampleRate = info.sampleRate
	meta.Channels = info.channels
	meta.BitDepth = info.bitDepth
	if info.frames > 0 && info.sampleRate > 0 {
		meta.Duration = float64(info.frames) / float64(info.sampleRate)
		meta.Bitrate = int(float64(len(data)*8) / meta.Duration)
	}
	return meta
}

func readTags(ctx context.Context, data []byte, meta *Metadata) {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		if err != tag.ErrNoTagsFound {
			utils.GetLogger().DebugContext(ctx, "no readable tags", slog.Any("error", err))
		}
		return
	}

	raw := m.Raw()
	meta.Title = firstNonEmpty(m.Title(), rawString(raw, "title"))
	meta.Artist = firstNonEmpty(m.Artist(), m.AlbumArtist(), rawString(raw, "artist"))
	meta.Album = firstNonEmpty(m.Album(), rawString(raw, "album"))
	meta.Genre = firstNonEmpty(m.Genre(), rawString(raw, "genre"))
	meta.Year = m.Year()
	meta.Track, _ = m.Track()
	meta.TagFormat = string(m.Format())
}

func rawString(raw map[string]interface{}, field string) string {
	for _, key := range rawTagKeys[field] {
		value, ok := raw[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case []string:
			if len(v) > 0 && strings.TrimSpace(v[0]) != "" {
				return strings.TrimSpace(v[0])
			}
		case *tag.Comm:
			if v != nil && strings.TrimSpace(v.Text) != "" {
				return strings.TrimSpace(v.Text)
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
