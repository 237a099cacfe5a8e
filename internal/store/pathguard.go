package store

import (
	"net/url"
	"path"
	"strings"
)

// URLPrefix is the public path prefix all attachment URLs live under.
const URLPrefix = "/uploads/"

// NormalizeURL reduces an attachment URL to its path form. It tolerates full
// http(s) URLs (host stripped), Windows backslashes and surrounding space.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "\\", "/")
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		if u, err := url.Parse(s); err == nil && u.Path != "" {
			s = u.Path
		}
	}
	return s
}

// IsUploadURL reports whether the normalized URL is rooted in the upload store.
func IsUploadURL(raw string) bool {
	return strings.HasPrefix(NormalizeURL(raw), URLPrefix)
}

// resolveURL maps an upload URL to a path relative to the store root.
// Any URL that is not store-rooted, or that would escape the root through
// traversal, resolves to ("", false).
func resolveURL(raw string) (string, bool) {
	s := NormalizeURL(raw)
	if !strings.HasPrefix(s, URLPrefix) {
		return "", false
	}
	rel := strings.TrimLeft(strings.TrimPrefix(s, URLPrefix), "/")
	if rel == "" {
		return "", false
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
