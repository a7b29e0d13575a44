package thumbnail

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marcus-crane/voxpro/metrics"
	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/resolver"
	"github.com/marcus-crane/voxpro/utils"
)

const (
	DefaultDecodeTimeout = 20 * time.Second
	DefaultPDFDPI        = 36
	maxMediaBytes        = 64 << 20
)

// Fetcher downloads media for decoders that need the raw bytes
type Fetcher interface {
	Fetch(ctx context.Context, mediaURL string) ([]byte, error)
}

// HTTPFetcher fetches media over HTTP with a size cap
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func (f *HTTPFetcher) Fetch(ctx context.Context, mediaURL string) ([]byte, error) {
	limit := f.MaxBytes
	if limit <= 0 {
		limit = maxMediaBytes
	}
	body, _, err := utils.Fetch(ctx, f.Client, mediaURL, limit)
	return body, err
}

type Options struct {
	Cache   *Cache
	Frames  FrameGrabber
	Pages   PageRenderer
	Fetcher Fetcher
	// ProxyBase is prepended to media URLs handed to the client
	ProxyBase     string
	PDFDPI        int
	DecodeTimeout time.Duration
}

type Pipeline struct {
	cache         *Cache
	frames        FrameGrabber
	pages         PageRenderer
	fetcher       Fetcher
	proxyBase     string
	dpi           int
	decodeTimeout time.Duration
	group         singleflight.Group
	decodes       atomic.Int64
}

func NewPipeline(opts Options) (*Pipeline, error) {
	cache := opts.Cache
	if cache == nil {
		var err error
		if cache, err = NewCache(DefaultCacheSize, nil, 0); err != nil {
			return nil, err
		}
	}
	p := &Pipeline{
		cache:         cache,
		frames:        opts.Frames,
		pages:         opts.Pages,
		fetcher:       opts.Fetcher,
		proxyBase:     opts.ProxyBase,
		dpi:           opts.PDFDPI,
		decodeTimeout: opts.DecodeTimeout,
	}
	if p.dpi <= 0 {
		p.dpi = DefaultPDFDPI
	}
	if p.decodeTimeout <= 0 {
		p.decodeTimeout = DefaultDecodeTimeout
	}
	return p, nil
}

// Decodes reports how many decodes have actually run
func (p *Pipeline) Decodes() int64 {
	return p.decodes.Load()
}

// Thumbnail returns the preview for an asset, decoding it if needed.
// It never fails: every error path produces a fallback preview.
func (p *Pipeline) Thumbnail(ctx context.Context, asset models.NormalizedAsset) Preview {
	if asset.ThumbnailURL != "" {
		return Preview{Kind: KindPassthrough, MediaType: asset.MediaType, URL: resolver.Proxy(p.proxyBase, asset.ThumbnailURL)}
	}
	if asset.MediaURL == "" {
		return glyphPreview(asset.MediaType)
	}
	switch asset.MediaType {
	case models.MediaImage:
		return Preview{Kind: KindPassthrough, MediaType: asset.MediaType, URL: resolver.Proxy(p.proxyBase, asset.MediaURL)}
	case models.MediaVideo, models.MediaPDF, models.MediaAudio:
		return p.decoded(ctx, asset.MediaType, asset.MediaURL)
	default:
		return glyphPreview(asset.MediaType)
	}
}

// Lookup returns a cached preview by key, used to serve raster payloads
func (p *Pipeline) Lookup(ctx context.Context, key string) (Preview, bool) {
	return p.cache.Get(ctx, key)
}

// Palette returns the dominant colours of a cached preview for the URL
func (p *Pipeline) Palette(ctx context.Context, mediaURL string) []string {
	if mediaURL == "" {
		return nil
	}
	if preview, ok := p.cache.Get(ctx, Key(mediaURL)); ok {
		return preview.Palette
	}
	return nil
}

func (p *Pipeline) decoded(ctx context.Context, mediaType models.MediaType, mediaURL string) Preview {
	key := Key(mediaURL)
	if preview, ok := p.cache.Get(ctx, key); ok {
		return preview
	}
	v, _, _ := p.group.Do(key, func() (any, error) {
		if preview, ok := p.cache.Get(ctx, key); ok {
			return preview, nil
		}
		// Shared by every waiter so it must not inherit one caller's cancellation
		decodeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.decodeTimeout)
		defer cancel()
		preview := p.decode(decodeCtx, mediaType, mediaURL, key)
		return p.cache.Add(decodeCtx, key, preview), nil
	})
	return v.(Preview)
}

func (p *Pipeline) decode(ctx context.Context, mediaType models.MediaType, mediaURL, key string) Preview {
	p.decodes.Add(1)
	var (
		preview Preview
		err     error
	)
	switch mediaType {
	case models.MediaVideo:
		preview, err = p.videoFrame(ctx, mediaURL)
	case models.MediaPDF:
		preview, err = p.pdfPage(ctx, mediaURL)
	case models.MediaAudio:
		preview, err = p.waveform(ctx, mediaURL)
	}
	if err != nil {
		slog.Debug("Falling back after thumbnail decode failure",
			slog.String("media_type", string(mediaType)),
			slog.String("url", mediaURL),
			slog.Any("error", err))
		metrics.ThumbnailDecodeTotal.WithLabelValues(string(mediaType), "fallback").Inc()
		return p.fallback(mediaType, mediaURL)
	}
	metrics.ThumbnailDecodeTotal.WithLabelValues(string(mediaType), "ok").Inc()
	preview.Kind = KindRaster
	preview.MediaType = mediaType
	preview.Key = key
	return preview
}

func (p *Pipeline) fallback(mediaType models.MediaType, mediaURL string) Preview {
	if mediaType == models.MediaVideo {
		src := resolver.Proxy(p.proxyBase, mediaURL)
		if !strings.Contains(src, "#") {
			src += "#t=0.1"
		}
		return Preview{Kind: KindPlayer, MediaType: mediaType, URL: src, Glyph: mediaType.Glyph()}
	}
	return glyphPreview(mediaType)
}

func (p *Pipeline) videoFrame(ctx context.Context, mediaURL string) (Preview, error) {
	if p.frames == nil {
		return Preview{}, fmt.Errorf("no frame grabber configured")
	}
	frame, err := p.frames.GrabFrame(ctx, mediaURL)
	if err != nil {
		return Preview{}, err
	}
	return rasterPreview(frame)
}

func (p *Pipeline) pdfPage(ctx context.Context, mediaURL string) (Preview, error) {
	if p.pages == nil || p.fetcher == nil {
		return Preview{}, fmt.Errorf("no page renderer configured")
	}
	doc, err := p.fetcher.Fetch(ctx, mediaURL)
	if err != nil {
		return Preview{}, err
	}
	page, err := p.pages.RenderPage(ctx, doc, 1, p.dpi)
	if err != nil {
		return Preview{}, err
	}
	return rasterPreview(page)
}

func (p *Pipeline) waveform(ctx context.Context, mediaURL string) (Preview, error) {
	if p.fetcher == nil {
		return Preview{}, fmt.Errorf("no fetcher configured")
	}
	data, err := p.fetcher.Fetch(ctx, mediaURL)
	if err != nil {
		return Preview{}, err
	}
	peaks, err := DecodePeaks(data, mediaURL, MaxBuckets)
	if err != nil {
		return Preview{}, err
	}
	encoded, err := encodePNG(DrawWaveform(peaks, Size))
	if err != nil {
		return Preview{}, err
	}
	return Preview{PNG: encoded, Palette: []string{utils.ColorToHexString(waveformColour)}}, nil
}

func rasterPreview(src image.Image) (Preview, error) {
	framed, palette := Letterbox(src, Size)
	encoded, err := encodePNG(framed)
	if err != nil {
		return Preview{}, err
	}
	return Preview{PNG: encoded, Palette: palette}, nil
}
