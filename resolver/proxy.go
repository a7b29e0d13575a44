package resolver

import (
	"net/url"
	"strings"
)

// Proxy routes a media URL through the configured pass-through proxy.
// Already proxied URLs are returned unchanged and an empty base disables it.
func Proxy(base, mediaURL string) string {
	if mediaURL == "" || base == "" {
		return mediaURL
	}
	if strings.HasPrefix(mediaURL, base) {
		return mediaURL
	}
	// blob handles only exist in the browser that minted them
	if strings.HasPrefix(strings.ToLower(mediaURL), "blob:") {
		return mediaURL
	}
	return base + url.QueryEscape(mediaURL)
}
