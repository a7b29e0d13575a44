package thumbnail

import (
	"fmt"
	"html"

	"github.com/marcus-crane/voxpro/models"
)

type Kind string

const (
	// KindPlaceholder is returned synchronously while a fill is pending
	KindPlaceholder Kind = "placeholder"
	KindPassthrough Kind = "image"
	KindRaster      Kind = "raster"
	KindPlayer      Kind = "player"
	KindGlyph       Kind = "glyph"
)

// RasterPath is where decoded previews are served from, suffixed with the preview key
const RasterPath = "/api/v1/thumbnails/"

// Preview is the declarative result of the pipeline. Raster previews
// carry their encoded PNG which is served separately under RasterPath.
type Preview struct {
	Kind      Kind             `json:"kind"`
	MediaType models.MediaType `json:"media_type"`
	URL       string           `json:"url,omitempty"`
	Glyph     string           `json:"glyph,omitempty"`
	Key       string           `json:"key,omitempty"`
	Palette   []string         `json:"palette,omitempty"`
	PNG       []byte           `json:"-"`
}

func glyphPreview(t models.MediaType) Preview {
	return Preview{Kind: KindGlyph, MediaType: t, Glyph: t.Glyph()}
}

func placeholderPreview(t models.MediaType) Preview {
	return Preview{Kind: KindPlaceholder, MediaType: t, Glyph: t.Glyph()}
}

// Fallback reports whether the preview is one of the degraded forms
func (p Preview) Fallback() bool {
	return p.Kind == KindGlyph || p.Kind == KindPlayer
}

// Markup renders the preview as an HTML fragment for the console list
func (p Preview) Markup() string {
	switch p.Kind {
	case KindPassthrough:
		onError := fmt.Sprintf("this.outerHTML='<div class=&quot;icon&quot;>%s</div>'", models.MediaImage.Glyph())
		return fmt.Sprintf(`<img src="%s" width="%d" height="%d" loading="lazy" onerror="%s" />`,
			html.EscapeString(p.URL), Size, Size, onError)
	case KindRaster:
		return fmt.Sprintf(`<img src="%s%s" width="%d" height="%d" />`, RasterPath, html.EscapeString(p.Key), Size, Size)
	case KindPlayer:
		return fmt.Sprintf(`<video muted preload="metadata" playsinline width="%d" height="%d"><source src="%s"></video>`,
			Size, Size, html.EscapeString(p.URL))
	case KindPlaceholder:
		return fmt.Sprintf(`<div class="icon pending">%s</div>`, html.EscapeString(p.Glyph))
	default:
		return fmt.Sprintf(`<div class="icon">%s</div>`, html.EscapeString(p.Glyph))
	}
}
