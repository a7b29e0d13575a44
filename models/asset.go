package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type MediaType string

const (
	MediaAudio   MediaType = "audio"
	MediaVideo   MediaType = "video"
	MediaImage   MediaType = "image"
	MediaPDF     MediaType = "pdf"
	MediaDoc     MediaType = "doc"
	MediaSheet   MediaType = "sheet"
	MediaUnknown MediaType = ""
)

// Glyph is the single character shown when no preview can be drawn
func (m MediaType) Glyph() string {
	switch m {
	case MediaAudio:
		return "🎵"
	case MediaVideo:
		return "🎬"
	case MediaPDF:
		return "📄"
	case MediaDoc:
		return "📝"
	case MediaSheet:
		return "📊"
	case MediaImage:
		return "🖼️"
	default:
		return "📁"
	}
}

type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// AssetRecord is a loosely shaped record as returned by any of the
// remote stores. Field names vary from store to store so nothing
// beyond "it's a JSON object" can be assumed.
type AssetRecord map[string]any

// String returns the field as a string if it's a string or a number
func (r AssetRecord) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Tags flattens either a string or a list of strings
func (r AssetRecord) Tags() string {
	switch t := r["tags"].(type) {
	case string:
		return t
	case []any:
		tags := make([]string, 0, len(t))
		for _, tag := range t {
			if s, ok := tag.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return strings.Join(tags, ", ")
	case []string:
		return strings.Join(t, ", ")
	}
	return ""
}

// ID returns the record's identifier, which may be numeric or textual
func (r AssetRecord) ID() string {
	return r.String("id")
}

// Time reads either an RFC3339 string or a unix millisecond timestamp
func (r AssetRecord) Time(key string) time.Time {
	switch t := r[key].(type) {
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// NormalizedAsset is the single shape every part of the console works with
// regardless of which store a record came from. Values are never mutated
// once built, use the With helpers to derive a copy.
type NormalizedAsset struct {
	ID           string    `json:"id"`
	Source       Source    `json:"source"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Station      string    `json:"station"`
	Tags         string    `json:"tags"`
	SubmittedBy  string    `json:"submitted_by"`
	ThumbnailURL string    `json:"thumbnail_url"`
	MediaURL     string    `json:"media_url"`
	MediaType    MediaType `json:"media_type"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a NormalizedAsset) HasMedia() bool {
	return a.MediaURL != ""
}

func (a NormalizedAsset) WithEdits(e AssetEdits) NormalizedAsset {
	if e.Title != nil {
		a.Title = *e.Title
	}
	if e.Description != nil {
		a.Description = *e.Description
	}
	if e.Station != nil {
		a.Station = *e.Station
	}
	if e.Tags != nil {
		a.Tags = *e.Tags
	}
	if e.SubmittedBy != nil {
		a.SubmittedBy = *e.SubmittedBy
	}
	return a
}

func (a NormalizedAsset) WithID(id string, source Source) NormalizedAsset {
	a.ID = id
	a.Source = source
	return a
}

// StoreID extracts the numeric identifier used by the asset store.
// Identifiers may carry a store prefix such as "store:42".
func (a NormalizedAsset) StoreID() (int64, bool) {
	id := a.ID
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// AssetEdits are optional metadata changes applied while binding a hotkey.
// Nil fields are left untouched.
type AssetEdits struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Station     *string `json:"station,omitempty"`
	Tags        *string `json:"tags,omitempty"`
	SubmittedBy *string `json:"submitted_by,omitempty"`
}

func (e AssetEdits) Empty() bool {
	return e.Title == nil && e.Description == nil && e.Station == nil && e.Tags == nil && e.SubmittedBy == nil
}

func StoreAssetID(n int64) string {
	return fmt.Sprintf("store:%d", n)
}
