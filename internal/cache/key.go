package cache

import (
	"net/url"
	"regexp"
	"strings"
)

// KeyPrefix namespaces persisted transcript cache entries.
const KeyPrefix = "transcriptCache:"

var videoIDParam = regexp.MustCompile(`[?&]v=([^&]+)`)

// ExtractVideoID pulls the stable video identifier out of a watch URL. It
// understands the `v` query parameter and youtu.be short links, and falls
// back to a loose regex when the URL does not parse. Returns "" when no
// identifier can be extracted.
func ExtractVideoID(videoURL string) string {
	trimmed := strings.TrimSpace(videoURL)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err == nil && parsed.Host != "" {
		if id := strings.TrimSpace(parsed.Query().Get("v")); id != "" {
			return id
		}
		if strings.Contains(parsed.Hostname(), "youtu.be") {
			path := strings.TrimLeft(parsed.Path, "/")
			if id := strings.SplitN(path, "/", 2)[0]; id != "" {
				return strings.TrimSpace(id)
			}
		}
		return ""
	}

	match := videoIDParam.FindStringSubmatch(trimmed)
	if len(match) == 2 {
		if decoded, err := url.QueryUnescape(match[1]); err == nil {
			return strings.TrimSpace(decoded)
		}
		return strings.TrimSpace(match[1])
	}
	return ""
}

// Key derives the deterministic cache key for a video URL: the extracted
// video ID when available, else the encoded URL itself. Equivalent URLs for
// the same video map to the same key.
func Key(videoURL string) string {
	if id := ExtractVideoID(videoURL); id != "" {
		return KeyPrefix + id
	}

	fallback := strings.TrimSpace(videoURL)
	if fallback == "" {
		fallback = "unknown-url"
	}
	return KeyPrefix + "url:" + url.QueryEscape(fallback)
}
