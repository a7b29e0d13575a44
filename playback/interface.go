package playback

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/marcus-crane/voxpro/models"
)

type Status string

const (
	StatusPlaying   Status = "playing"
	StatusTapToPlay Status = "tap_to_play"
	StatusStopped   Status = "stopped"
)

type SurfaceKind string

const (
	SurfaceAudio       SurfaceKind = "audio"
	SurfaceVideo       SurfaceKind = "video"
	SurfaceImage       SurfaceKind = "image"
	SurfacePDF         SurfaceKind = "pdf"
	SurfaceDoc         SurfaceKind = "doc"
	SurfaceUnsupported SurfaceKind = "unsupported"
	SurfaceEmpty       SurfaceKind = "empty"
)

const (
	MessageNoMedia     = "No media URL on this asset."
	MessageUnsupported = "Preview not available."

	// Players start a fraction in so a poster frame shows while loading
	videoStartHint = "#t=0.1"
)

// Oscilloscope describes the live scope drawn next to audio players
type Oscilloscope struct {
	Mode       string `json:"mode"`
	FFTSize    int    `json:"fft_size"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Stroke     string `json:"stroke"`
	Background string `json:"background"`
}

func defaultOscilloscope() *Oscilloscope {
	return &Oscilloscope{
		Mode:       "time-domain",
		FFTSize:    2048,
		Width:      460,
		Height:     220,
		Stroke:     "#00ff88",
		Background: "#0b0b0b",
	}
}

// Pagination is the state of a paginated document surface
type Pagination struct {
	Page      int    `json:"page"`
	PageCount int    `json:"page_count"`
	ImageURL  string `json:"image_url"`
	HasPrev   bool   `json:"has_prev"`
	HasNext   bool   `json:"has_next"`
}

// Surface is the one media element presented to the operator. Only one
// exists at a time, presenting another tears the previous one down.
type Surface struct {
	ID           string                 `json:"id"`
	Slot         int                    `json:"slot"`
	Kind         SurfaceKind            `json:"kind"`
	Status       Status                 `json:"status"`
	Asset        models.NormalizedAsset `json:"asset"`
	Source       string                 `json:"source,omitempty"`
	Autoplay     bool                   `json:"autoplay"`
	TapToPlay    bool                   `json:"tap_to_play"`
	Oscilloscope *Oscilloscope          `json:"oscilloscope,omitempty"`
	Pages        *Pagination            `json:"pages,omitempty"`
	HTML         string                 `json:"html,omitempty"`
	Message      string                 `json:"message,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
}

// MediaItem stores metadata about each asset that has been presented.
// Presenting the same asset many times yields one MediaItem and many
// PlaybackEntry rows.
type MediaItem struct {
	ID              string                     `db:"id"`
	AssetID         string                     `db:"asset_id"`
	Title           string                     `db:"title"`
	Station         string                     `db:"station"`
	MediaType       string                     `db:"media_type"`
	MediaURL        string                     `db:"media_url"`
	Source          string                     `db:"source"`
	DominantColours models.SerializableColours `db:"dominant_colours"`
}

// PlaybackEntry is a single presentation of a MediaItem
type PlaybackEntry struct {
	ID        int       `db:"id"`
	MediaID   string    `db:"media_id"`
	SessionID string    `db:"session_id"`
	Slot      int       `db:"slot"`
	Surface   string    `db:"surface"`
	Status    Status    `db:"status"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HistoryEntry reflects a single PlaybackEntry with MediaItem metadata attached
type HistoryEntry struct {
	// MediaItem fields
	ID              string                     `db:"id" json:"id"`
	AssetID         string                     `db:"asset_id" json:"asset_id"`
	Title           string                     `db:"title" json:"title"`
	Station         string                     `db:"station" json:"station"`
	MediaType       string                     `db:"media_type" json:"media_type"`
	MediaURL        string                     `db:"media_url" json:"media_url"`
	Source          string                     `db:"source" json:"source"`
	DominantColours models.SerializableColours `db:"dominant_colours" json:"dominant_colours"`

	// PlaybackEntry fields
	PlaybackID int       `db:"playback_id" json:"-"`
	SessionID  string    `db:"session_id" json:"session_id"`
	Slot       int       `db:"slot" json:"slot"`
	Surface    string    `db:"surface" json:"surface"`
	Status     Status    `db:"status" json:"status"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

func GenerateMediaID(asset models.NormalizedAsset) string {
	hashString := fmt.Sprintf("%s-%s-%s-%s",
		asset.ID,
		asset.Title,
		asset.MediaType,
		asset.MediaURL,
	)
	return fmt.Sprintf(
		"%s:%s:%d",
		asset.Source,
		asset.MediaType,
		xxhash.Sum64String(hashString),
	)
}
