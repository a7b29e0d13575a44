package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

const (
	// MaxBuckets caps the horizontal resolution of a decoded waveform
	MaxBuckets = 1000
	// Only the start of very long recordings is used for the preview
	maxWaveformDuration = 10 * time.Minute
	chunkSize           = 512
)

var (
	ErrUnsupportedAudio = errors.New("unsupported audio encoding")
	ErrSilentAudio      = errors.New("audio contained no samples")
)

// Peak is the min/max envelope of one bucket of mono samples in [-1, 1]
type Peak struct {
	Min float64
	Max float64
}

func (p Peak) merge(o Peak) Peak {
	if o.Min < p.Min {
		p.Min = o.Min
	}
	if o.Max > p.Max {
		p.Max = o.Max
	}
	return p
}

type audioFormat string

const (
	formatMP3    audioFormat = "mp3"
	formatWAV    audioFormat = "wav"
	formatFLAC   audioFormat = "flac"
	formatVorbis audioFormat = "ogg"
)

// sniffAudio identifies the container from magic bytes, then the URL's extension
func sniffAudio(data []byte, mediaURL string) (audioFormat, bool) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return formatWAV, true
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return formatFLAC, true
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return formatVorbis, true
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return formatMP3, true
	case len(data) >= 2 && data[0] == 0xff && data[1]&0xe0 == 0xe0:
		return formatMP3, true
	}
	p := mediaURL
	if u, err := url.Parse(mediaURL); err == nil {
		p = u.Path
	}
	switch strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".") {
	case "mp3":
		return formatMP3, true
	case "wav":
		return formatWAV, true
	case "flac":
		return formatFLAC, true
	case "ogg":
		return formatVorbis, true
	}
	return "", false
}

func decodeAudio(data []byte, mediaURL string) (beep.StreamSeekCloser, beep.Format, error) {
	f, ok := sniffAudio(data, mediaURL)
	if !ok {
		return nil, beep.Format{}, ErrUnsupportedAudio
	}
	rc := io.NopCloser(bytes.NewReader(data))
	switch f {
	case formatWAV:
		return wav.Decode(bytes.NewReader(data))
	case formatFLAC:
		return flac.Decode(bytes.NewReader(data))
	case formatVorbis:
		return vorbis.Decode(rc)
	default:
		return mp3.Decode(rc)
	}
}

// DecodePeaks decodes an audio file and reduces it to at most buckets
// min/max pairs
func DecodePeaks(data []byte, mediaURL string, buckets int) ([]Peak, error) {
	if buckets <= 0 || buckets > MaxBuckets {
		buckets = MaxBuckets
	}
	streamer, format, err := decodeAudio(data, mediaURL)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	defer streamer.Close()

	limit := format.SampleRate.N(maxWaveformDuration)
	samples := make([][2]float64, chunkSize)
	chunks := []Peak{}
	total := 0
	for total < limit {
		n, ok := streamer.Stream(samples)
		if n > 0 {
			peak := Peak{Min: 1, Max: -1}
			for _, s := range samples[:n] {
				mono := (s[0] + s[1]) / 2
				peak = peak.merge(Peak{Min: mono, Max: mono})
			}
			chunks = append(chunks, peak)
			total += n
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("stream audio: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrSilentAudio
	}
	return Downsample(chunks, buckets), nil
}

// Downsample merges peaks into at most n buckets
func Downsample(peaks []Peak, n int) []Peak {
	if len(peaks) <= n {
		return peaks
	}
	out := make([]Peak, n)
	for i := 0; i < n; i++ {
		start := i * len(peaks) / n
		end := (i + 1) * len(peaks) / n
		if end <= start {
			end = start + 1
		}
		p := peaks[start]
		for _, q := range peaks[start+1 : end] {
			p = p.merge(q)
		}
		out[i] = p
	}
	return out
}

// DrawWaveform draws one vertical min/max line per pixel column
func DrawWaveform(peaks []Peak, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColour}, image.Point{}, draw.Src)
	if len(peaks) == 0 {
		return img
	}
	mid := float64(size-1) / 2
	for x := 0; x < size; x++ {
		start := x * len(peaks) / size
		end := (x + 1) * len(peaks) / size
		if end <= start {
			end = start + 1
		}
		if start >= len(peaks) {
			break
		}
		if end > len(peaks) {
			end = len(peaks)
		}
		p := peaks[start]
		for _, q := range peaks[start+1 : end] {
			p = p.merge(q)
		}
		top := int(mid - clamp(p.Max)*mid)
		bottom := int(mid - clamp(p.Min)*mid)
		for y := top; y <= bottom; y++ {
			img.SetRGBA(x, y, waveformColour)
		}
	}
	return img
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
