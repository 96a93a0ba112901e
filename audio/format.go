package audio

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Format is the detected audio container.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"
	FormatAIFF Format = "aiff"
	FormatMP3  Format = "mp3"
	FormatAAC  Format = "aac"
	FormatM4A  Format = "m4a"
	FormatOGG  Format = "ogg"
	FormatWMA  Format = "wma"
)

var extensionFormats = map[string]Format{
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".flac": FormatFLAC,
	".aif":  FormatAIFF,
	".aiff": FormatAIFF,
	".aifc": FormatAIFF,
	".mp3":  FormatMP3,
	".aac":  FormatAAC,
	".m4a":  FormatM4A,
	".mp4":  FormatM4A,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".wma":  FormatWMA,
}

var mimeFormats = map[string]Format{
	"audio/wav":       FormatWAV,
	"audio/wave":      FormatWAV,
	"audio/x-wav":     FormatWAV,
	"audio/vnd.wave":  FormatWAV,
	"audio/flac":      FormatFLAC,
	"audio/x-flac":    FormatFLAC,
	"audio/aiff":      FormatAIFF,
	"audio/x-aiff":    FormatAIFF,
	"audio/mpeg":      FormatMP3,
	"audio/mp3":       FormatMP3,
	"audio/aac":       FormatAAC,
	"audio/x-aac":     FormatAAC,
	"audio/mp4":       FormatM4A,
	"audio/x-m4a":     FormatM4A,
	"audio/ogg":       FormatOGG,
	"application/ogg": FormatOGG,
	"audio/x-ms-wma":  FormatWMA,
}

// asfHeader is the ASF header object GUID that opens every WMA file.
var asfHeader = []byte{0x30, 0x26, 0xB2, 0x75, 0x8E, 0x66, 0xCF, 0x11}

// Lossless reports whether the container carries uncompressed or
// losslessly compressed PCM.
func (f Format) Lossless() bool {
	return f == FormatWAV || f == FormatFLAC || f == FormatAIFF
}

// HasAudioExtension reports whether path carries a known audio extension.
func HasAudioExtension(path string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DetectFormat identifies the container of the file at path: by extension,
// then by MIME type, then by sniffing the leading bytes.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if format, ok := extensionFormats[ext]; ok {
		return format, nil
	}

	if mt := mime.TypeByExtension(ext); mt != "" {
		if format, ok := formatFromMIME(mt); ok {
			return format, nil
		}
	}

	head, err := readHead(path, 512)
	if err != nil {
		return "", err
	}

	if format, ok := formatFromMIME(http.DetectContentType(head)); ok {
		return format, nil
	}
	if format, ok := sniffMagic(head); ok {
		return format, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

func formatFromMIME(mt string) (Format, bool) {
	base, _, err := mime.ParseMediaType(mt)
	if err != nil {
		base = mt
	}
	format, ok := mimeFormats[strings.ToLower(base)]
	return format, ok
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return buf[:read], nil
}

// sniffMagic inspects the first 12 bytes of a file.
func sniffMagic(head []byte) (Format, bool) {
	if len(head) > 12 {
		head = head[:12]
	}
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV, true
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("FORM")) &&
		(bytes.Equal(head[8:12], []byte("AIFF")) || bytes.Equal(head[8:12], []byte("AIFC"))):
		return FormatAIFF, true
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC, true
	case bytes.HasPrefix(head, []byte("OggS")):
		return FormatOGG, true
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3, true
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return FormatM4A, true
	case bytes.HasPrefix(head, asfHeader):
		return FormatWMA, true
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xF6 == 0xF0:
		// ADTS sync with layer bits 00
		return FormatAAC, true
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3, true
	}
	return "", false
}
