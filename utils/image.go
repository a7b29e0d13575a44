package utils

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"

	color_extractor "github.com/marekm4/color-extractor"
)

var (
	ErrTooLarge = errors.New("response body exceeded size limit")
)

// Fetch downloads a URL into memory, refusing bodies larger than maxBytes.
// The sniffed content type is returned alongside the body.
func Fetch(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return []byte{}, "", err
	}
	req.Header.Set("User-Agent", UserAgent)
	res, err := client.Do(req)
	if err != nil {
		return []byte{}, "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return []byte{}, "", fmt.Errorf("fetch %s: unexpected status %d", url, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBytes+1))
	if err != nil {
		return []byte{}, "", err
	}
	if int64(len(body)) > maxBytes {
		return []byte{}, "", ErrTooLarge
	}

	return body, http.DetectContentType(body), nil
}

// DominantColours returns the image's dominant colours as hex strings,
// most prominent first
func DominantColours(img image.Image) []string {
	domColours := []string{}
	if img == nil {
		return domColours
	}
	for _, c := range color_extractor.ExtractColors(img) {
		domColours = append(domColours, ColorToHexString(c))
	}
	return domColours
}

func ColorToHexString(c color.Color) string {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	return fmt.Sprintf("#%.2x%.2x%.2x", rgba.R, rgba.G, rgba.B)
}

// HexToColor parses #rrggbb, returning fallback for anything else
func HexToColor(hex string, fallback color.RGBA) color.RGBA {
	var r, g, b uint8
	if len(hex) != 7 || hex[0] != '#' {
		return fallback
	}
	if _, err := fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
