// Package platform recognizes source platforms and their native identifiers.
package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Source type tags written to catalog records.
const (
	YouTube = "youtube"
	Vimeo   = "vimeo"
	TikTok  = "tiktok"
	Other   = "other"
)

// Thumbnail tiers, highest resolution first.
const (
	TierMaxRes  = "maxresdefault"
	TierHigh    = "hqdefault"
	TierMedium  = "mqdefault"
	TierDefault = "default"
)

// ThumbnailTiers is the fixed probe order.
var ThumbnailTiers = []string{TierMaxRes, TierHigh, TierMedium, TierDefault}

// FallbackTier is returned when no probe succeeds; it exists for effectively every video.
const FallbackTier = TierHigh

// DefaultThumbnailBase is the image host for YouTube thumbnails.
const DefaultThumbnailBase = "https://i.ytimg.com/vi"

var videoIDPattern = regexp.MustCompile(
	`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|v/|shorts/|live/)|youtu\.be/)([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`,
)

// Detect returns the source type tag for a URL by substring match.
func Detect(sourceURL string) string {
	lower := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return YouTube
	case strings.Contains(lower, "vimeo.com"):
		return Vimeo
	case strings.Contains(lower, "tiktok.com"):
		return TikTok
	default:
		return Other
	}
}

// IsRecognized reports whether the URL belongs to the platform with a
// metadata-only API and addressable thumbnails.
func IsRecognized(sourceURL string) bool {
	return Detect(sourceURL) == YouTube
}

// VideoID extracts the 11-character platform identifier from a URL.
func VideoID(sourceURL string) (string, bool) {
	m := videoIDPattern.FindStringSubmatch(sourceURL)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// WatchURL returns the canonical watch URL for an identifier.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)
}

// ThumbnailURL builds the image URL for an identifier and tier under base.
func ThumbnailURL(base, videoID, tier string) string {
	if base == "" {
		base = DefaultThumbnailBase
	}
	return fmt.Sprintf("%s/%s/%s.jpg", strings.TrimRight(base, "/"), videoID, tier)
}
