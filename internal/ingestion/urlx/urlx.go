package urlx

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Platform is the source family a URL belongs to. Downloader variants are
// registered per platform.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformUnknown   Platform = "unknown"
)

// Class is the canonicalizer's shape hint for a URL. Carousel candidacy is
// advisory; the downloader makes the final call from the fetched metadata.
type Class string

const (
	ClassSingle            Class = "single"
	ClassCarouselCandidate Class = "carousel_candidate"
	ClassUnsupported       Class = "unsupported"
)

// Normalize canonicalizes a source URL: query string and fragment dropped,
// scheme and host lowercased, path preserved verbatim (post IDs are case
// sensitive), no trailing slash. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host: %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	} else {
		u.Path = ""
	}
	u.RawPath = ""
	return u.String(), nil
}

// PlatformOf classifies the host into a platform family.
func PlatformOf(raw string) Platform {
	host := hostOf(raw)
	switch {
	case hostIs(host, "instagram.com"):
		return PlatformInstagram
	case hostIs(host, "tiktok.com"):
		return PlatformTikTok
	case hostIs(host, "youtube.com"), hostIs(host, "youtu.be"):
		return PlatformYouTube
	default:
		return PlatformUnknown
	}
}

// Classify maps a URL onto single / carousel candidate / unsupported from
// its host and path shape alone.
func Classify(raw string) Class {
	normalized, err := Normalize(raw)
	if err != nil {
		return ClassUnsupported
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return ClassUnsupported
	}
	path := u.Path
	switch PlatformOf(raw) {
	case PlatformInstagram:
		switch {
		case strings.HasPrefix(path, "/p/"):
			return ClassCarouselCandidate
		case strings.HasPrefix(path, "/reel/"),
			strings.HasPrefix(path, "/reels/"),
			strings.HasPrefix(path, "/tv/"):
			return ClassSingle
		}
		return ClassUnsupported
	case PlatformTikTok:
		switch {
		case strings.Contains(path, "/photo/"):
			return ClassCarouselCandidate
		case strings.Contains(path, "/video/"), strings.HasPrefix(path, "/t/"):
			return ClassSingle
		}
		return ClassUnsupported
	case PlatformYouTube:
		// watch?v= URLs carry identity in the query string, which
		// normalization strips; only shorts and youtu.be links survive.
		switch {
		case strings.HasPrefix(path, "/shorts/"):
			return ClassSingle
		case hostIs(u.Host, "youtu.be") && len(path) > 1:
			return ClassSingle
		}
		return ClassUnsupported
	default:
		return ClassUnsupported
	}
}

// CarouselIndex extracts an explicit per-item index when the raw URL
// encodes one (Instagram's img_index query parameter). Runs on the raw
// URL because normalization strips the query string.
func CarouselIndex(raw string) (int, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return 0, false
	}
	v := u.Query().Get("img_index")
	if v == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(v)
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}

func hostOf(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func hostIs(host, domain string) bool {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
