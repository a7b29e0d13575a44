package resolver

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/marcus-crane/voxpro/models"
)

const (
	hintField      = "file_type"
	thumbnailField = "thumbnail"
	fileField      = "file"
	maxScanDepth   = 4
)

// Fields checked in order before falling back to a full scan of the record
var commonFields = []string{
	"media_url",
	"database_url",
	"file_url",
	"url",
	"public_url",
	"signed_url",
	"s3_url",
	"storage_url",
	"path",
	"source_url",
}

var fileFields = []string{"url", "path", "public_url"}

var schemes = []string{"http://", "https://", "blob:"}

var suffixTables = []struct {
	mediaType models.MediaType
	pattern   *regexp.Regexp
}{
	{models.MediaAudio, regexp.MustCompile(`\.(mp3|m4a|aac|wav|ogg|flac)$`)},
	{models.MediaVideo, regexp.MustCompile(`\.(mp4|mov|mkv|webm)$`)},
	{models.MediaImage, regexp.MustCompile(`\.(png|jpg|jpeg|gif|webp|avif)$`)},
	{models.MediaPDF, regexp.MustCompile(`\.pdf$`)},
	{models.MediaDoc, regexp.MustCompile(`\.(doc|docx)$`)},
	{models.MediaSheet, regexp.MustCompile(`\.(xls|xlsx|csv)$`)},
}

// Hints are free text ("audio", "audio/mpeg", "Video file") so they
// are matched on substrings in this order
var hintKinds = []struct {
	needle    string
	mediaType models.MediaType
}{
	{"audio", models.MediaAudio},
	{"video", models.MediaVideo},
	{"image", models.MediaImage},
	{"pdf", models.MediaPDF},
	{"sheet", models.MediaSheet},
	{"excel", models.MediaSheet},
	{"csv", models.MediaSheet},
	{"doc", models.MediaDoc},
	{"word", models.MediaDoc},
}

type Resolution struct {
	MediaURL     string           `json:"media_url"`
	MediaType    models.MediaType `json:"media_type"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
}

// Resolve finds the playable URL and media type of a record. It never
// fails: a record without any usable URL resolves to an empty MediaURL.
func Resolve(record models.AssetRecord) Resolution {
	mediaURL := findMediaURL(record)
	return Resolution{
		MediaURL:     mediaURL,
		MediaType:    DetectType(record.String(hintField), mediaURL),
		ThumbnailURL: thumbnailURL(record),
	}
}

// Normalize builds the NormalizedAsset for a record from the given source
func Normalize(record models.AssetRecord, source models.Source) models.NormalizedAsset {
	res := Resolve(record)
	title := strings.TrimSpace(record.String("title"))
	if title == "" {
		title = "Untitled"
	}
	return models.NormalizedAsset{
		ID:           record.ID(),
		Source:       source,
		Title:        title,
		Description:  record.String("description"),
		Station:      record.String("station"),
		Tags:         record.Tags(),
		SubmittedBy:  record.String("submitted_by"),
		ThumbnailURL: res.ThumbnailURL,
		MediaURL:     res.MediaURL,
		MediaType:    res.MediaType,
		CreatedAt:    record.Time("created_at"),
	}
}

// DetectType prefers a recognisable hint and otherwise sniffs the URL's
// path extension. Anything else is MediaUnknown.
func DetectType(hint, mediaURL string) models.MediaType {
	if t := typeFromHint(hint); t != models.MediaUnknown {
		return t
	}
	return typeFromURL(mediaURL)
}

func typeFromHint(hint string) models.MediaType {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return models.MediaUnknown
	}
	for _, k := range hintKinds {
		if strings.Contains(hint, k.needle) {
			return k.mediaType
		}
	}
	return models.MediaUnknown
}

func typeFromURL(mediaURL string) models.MediaType {
	if mediaURL == "" {
		return models.MediaUnknown
	}
	p := mediaURL
	if u, err := url.Parse(mediaURL); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return models.MediaUnknown
	}
	for _, table := range suffixTables {
		if table.pattern.MatchString(ext) {
			return table.mediaType
		}
	}
	return models.MediaUnknown
}

// IsURL reports whether s starts with one of the accepted schemes
func IsURL(s string) bool {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, scheme := range schemes {
		if strings.HasPrefix(lower, scheme) && len(s) > len(scheme) {
			return true
		}
	}
	return false
}

func findMediaURL(record models.AssetRecord) string {
	if record == nil {
		return ""
	}
	if u := urlField(record, hintField); u != "" {
		return u
	}
	for _, field := range commonFields {
		if u := urlField(record, field); u != "" {
			return u
		}
	}
	if file, ok := record[fileField].(map[string]any); ok {
		for _, field := range fileFields {
			if u := urlField(file, field); u != "" {
				return u
			}
		}
	}
	if u := urlField(record, thumbnailField); u != "" {
		return u
	}
	return scan(map[string]any(record), 0)
}

func thumbnailURL(record models.AssetRecord) string {
	if record == nil {
		return ""
	}
	return urlField(record, thumbnailField)
}

func urlField(m map[string]any, key string) string {
	s, ok := m[key].(string)
	if !ok || !IsURL(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

// scan walks every value of the record. Map keys are visited in sorted
// order so the same record always resolves to the same URL.
func scan(v any, depth int) string {
	if v == nil || depth > maxScanDepth {
		return ""
	}
	switch t := v.(type) {
	case string:
		if IsURL(t) {
			return strings.TrimSpace(t)
		}
	case []any:
		for _, item := range t {
			if u := scan(item, depth+1); u != "" {
				return u
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if u := scan(t[k], depth+1); u != "" {
				return u
			}
		}
	case models.AssetRecord:
		return scan(map[string]any(t), depth)
	}
	return ""
}
