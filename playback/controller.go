package playback

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus-crane/voxpro/events"
	"github.com/marcus-crane/voxpro/metrics"
	"github.com/marcus-crane/voxpro/models"
	"github.com/marcus-crane/voxpro/resolver"
	"github.com/marcus-crane/voxpro/thumbnail"
)

const (
	DefaultPageDPI = 110
	PagePath       = "/api/v1/playback/pages/"

	MessageDocFailed = "Error loading document. It may be corrupt or unreachable."
)

var (
	ErrNoSurface    = errors.New("nothing is being presented")
	ErrStaleSurface = errors.New("surface is no longer active")
	ErrNotPaginated = errors.New("active surface has no pages")
)

// PaletteSource supplies dominant colours for media that has been thumbnailed
type PaletteSource interface {
	Palette(ctx context.Context, mediaURL string) []string
}

type Options struct {
	History   *History
	Publisher events.Publisher
	Fetcher   thumbnail.Fetcher
	Pages     thumbnail.PageRenderer
	Palettes  PaletteSource
	ProxyBase string
	PageDPI   int
}

// Controller owns the single media surface shown to the operator
type Controller struct {
	history   *History
	publisher events.Publisher
	fetcher   thumbnail.Fetcher
	pages     thumbnail.PageRenderer
	palettes  PaletteSource
	proxyBase string
	dpi       int

	m      sync.Mutex
	active *Surface
	// raw bytes of the active paginated document
	document []byte
}

func NewController(opts Options) *Controller {
	c := &Controller{
		history:   opts.History,
		publisher: opts.Publisher,
		fetcher:   opts.Fetcher,
		pages:     opts.Pages,
		palettes:  opts.Palettes,
		proxyBase: opts.ProxyBase,
		dpi:       opts.PageDPI,
	}
	if c.publisher == nil {
		c.publisher = events.Discard{}
	}
	if c.dpi <= 0 {
		c.dpi = DefaultPageDPI
	}
	return c
}

// Present tears down the active surface, if any, and replaces it with one
// for asset. It never fails: problems with the media produce a surface
// carrying a message instead.
func (c *Controller) Present(ctx context.Context, slot int, asset models.NormalizedAsset) Surface {
	surface, document := c.build(ctx, slot, asset)

	c.m.Lock()
	previous := c.teardown()
	c.active = &surface
	c.document = document
	c.m.Unlock()

	if previous != nil {
		c.record(ctx, *previous, true)
		c.publisher.Publish(events.StreamPlayback, previous)
	}
	c.record(ctx, surface, false)
	c.publisher.Publish(events.StreamPlayback, surface)
	metrics.PlaybackPresentTotal.WithLabelValues(string(surface.Kind)).Inc()
	metrics.PlaybackActive.Set(1)

	slog.Info("Presenting media",
		slog.Int("slot", slot),
		slog.String("surface", string(surface.Kind)),
		slog.String("asset_id", asset.ID))
	return surface
}

// Stop tears down the active surface. Stopping with nothing presented is a no-op.
func (c *Controller) Stop(ctx context.Context) {
	c.m.Lock()
	previous := c.teardown()
	c.m.Unlock()
	if previous == nil {
		return
	}
	c.record(ctx, *previous, true)
	c.publisher.Publish(events.StreamPlayback, previous)
	metrics.PlaybackActive.Set(0)
}

// Active returns a copy of the surface being presented
func (c *Controller) Active() (Surface, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.active == nil {
		return Surface{}, false
	}
	return *c.active, true
}

// AutoplayBlocked is reported by the front end when the runtime refused to
// start playback. The surface switches to a tap to play affordance.
func (c *Controller) AutoplayBlocked(ctx context.Context, id string) (Surface, error) {
	return c.setStatus(ctx, id, StatusTapToPlay)
}

// Resume is reported once the operator has tapped to play
func (c *Controller) Resume(ctx context.Context, id string) (Surface, error) {
	return c.setStatus(ctx, id, StatusPlaying)
}

func (c *Controller) setStatus(ctx context.Context, id string, status Status) (Surface, error) {
	c.m.Lock()
	if c.active == nil || c.active.ID != id {
		c.m.Unlock()
		return Surface{}, ErrStaleSurface
	}
	c.active.Status = status
	c.active.TapToPlay = status == StatusTapToPlay
	surface := *c.active
	c.m.Unlock()

	if c.history != nil {
		if err := c.history.Update(ctx, id, status); err != nil {
			slog.Error("Failed to update playback history", slog.String("session_id", id), slog.Any("error", err))
		}
	}
	c.publisher.Publish(events.StreamPlayback, surface)
	return surface, nil
}

// TurnPage moves a paginated surface one page forward (dir > 0) or back
func (c *Controller) TurnPage(ctx context.Context, dir int) (Surface, error) {
	c.m.Lock()
	if c.active == nil {
		c.m.Unlock()
		return Surface{}, ErrNoSurface
	}
	if c.active.Pages == nil {
		c.m.Unlock()
		return Surface{}, ErrNotPaginated
	}
	pages := *c.active.Pages
	switch {
	case dir > 0 && pages.HasNext:
		pages.Page++
	case dir < 0 && pages.HasPrev:
		pages.Page--
	}
	c.active.Pages = c.paginate(c.active.ID, pages.Page, pages.PageCount)
	surface := *c.active
	c.m.Unlock()

	c.publisher.Publish(events.StreamPlayback, surface)
	return surface, nil
}

// PageImage renders one page of the active document as a raster
func (c *Controller) PageImage(ctx context.Context, id string, page int) (image.Image, error) {
	c.m.Lock()
	if c.active == nil || c.active.ID != id {
		c.m.Unlock()
		return nil, ErrStaleSurface
	}
	if c.active.Pages == nil || c.document == nil || c.pages == nil {
		c.m.Unlock()
		return nil, ErrNotPaginated
	}
	document := c.document
	c.m.Unlock()

	if page < 1 {
		return nil, thumbnail.ErrPageMissing
	}
	return c.pages.RenderPage(ctx, document, page, c.dpi)
}

// teardown pauses and detaches the active surface. Callers hold c.m.
func (c *Controller) teardown() *Surface {
	if c.active == nil {
		return nil
	}
	previous := *c.active
	previous.Status = StatusStopped
	previous.Autoplay = false
	previous.TapToPlay = false
	previous.Source = ""
	c.active = nil
	c.document = nil
	return &previous
}

func (c *Controller) record(ctx context.Context, s Surface, closed bool) {
	if c.history == nil {
		return
	}
	var err error
	if closed {
		err = c.history.Update(ctx, s.ID, StatusStopped)
	} else {
		var colours []string
		if c.palettes != nil {
			colours = c.palettes.Palette(ctx, s.Asset.MediaURL)
		}
		err = c.history.Open(ctx, s, colours)
	}
	if err != nil {
		slog.Error("Failed to record playback history",
			slog.String("session_id", s.ID),
			slog.Any("error", err))
	}
}

func (c *Controller) build(ctx context.Context, slot int, asset models.NormalizedAsset) (Surface, []byte) {
	surface := Surface{
		ID:        uuid.NewString(),
		Slot:      slot,
		Asset:     asset,
		Status:    StatusStopped,
		StartedAt: time.Now(),
	}
	if asset.MediaURL == "" {
		surface.Kind = SurfaceEmpty
		surface.Message = MessageNoMedia
		return surface, nil
	}
	source := resolver.Proxy(c.proxyBase, asset.MediaURL)

	switch asset.MediaType {
	case models.MediaAudio:
		surface.Kind = SurfaceAudio
		surface.Source = source
		surface.Oscilloscope = defaultOscilloscope()
		surface.play()
	case models.MediaVideo:
		surface.Kind = SurfaceVideo
		surface.Source = source
		if !strings.Contains(source, "#") {
			surface.Source += videoStartHint
		}
		surface.play()
	case models.MediaImage:
		surface.Kind = SurfaceImage
		surface.Source = source
		surface.Status = StatusPlaying
	case models.MediaPDF:
		surface.Kind = SurfacePDF
		surface.Source = source
		surface.Status = StatusPlaying
		document, count := c.loadDocument(ctx, asset.MediaURL)
		surface.Pages = c.paginate(surface.ID, 1, count)
		return surface, document
	case models.MediaDoc:
		surface.Kind = SurfaceDoc
		surface.Source = source
		surface.Status = StatusPlaying
		markup, err := c.convertDocument(ctx, asset.MediaURL)
		if err != nil {
			slog.Warn("Failed to convert document",
				slog.String("url", asset.MediaURL),
				slog.Any("error", err))
			surface.Message = MessageDocFailed
		}
		surface.HTML = markup
	default:
		surface.Kind = SurfaceUnsupported
		surface.Message = MessageUnsupported
	}
	return surface, nil
}

func (s *Surface) play() {
	s.Autoplay = true
	s.Status = StatusPlaying
}

// loadDocument fetches a pdf and counts its pages. A count of zero means
// unknown and the surface still pages forward on request.
func (c *Controller) loadDocument(ctx context.Context, mediaURL string) ([]byte, int) {
	if c.fetcher == nil || c.pages == nil {
		return nil, 0
	}
	document, err := c.fetcher.Fetch(ctx, mediaURL)
	if err != nil {
		slog.Warn("Failed to fetch document", slog.String("url", mediaURL), slog.Any("error", err))
		return nil, 0
	}
	count, err := c.pages.PageCount(ctx, document)
	if err != nil {
		slog.Debug("Page count unavailable", slog.String("url", mediaURL), slog.Any("error", err))
		return document, 0
	}
	return document, count
}

func (c *Controller) convertDocument(ctx context.Context, mediaURL string) (string, error) {
	if c.fetcher == nil {
		return "", fmt.Errorf("no fetcher configured")
	}
	data, err := c.fetcher.Fetch(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	return DocxToHTML(data)
}

func (c *Controller) paginate(id string, page, count int) *Pagination {
	if page < 1 {
		page = 1
	}
	if count > 0 && page > count {
		page = count
	}
	return &Pagination{
		Page:      page,
		PageCount: count,
		ImageURL:  fmt.Sprintf("%s%d?surface=%s", PagePath, page, id),
		HasPrev:   page > 1,
		HasNext:   count == 0 || page < count,
	}
}

// History returns the most recent presentations, newest first
func (c *Controller) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if c.history == nil {
		return []HistoryEntry{}, nil
	}
	return c.history.Recent(ctx, limit)
}
