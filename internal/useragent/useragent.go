// Package useragent classifies raw User-Agent headers into coarse families.
package useragent

import "strings"

// Unknown is the fallback for browser and OS families the parser cannot place.
const Unknown = "Unknown"

// Parse extracts browser family, OS family, and device class from a raw
// User-Agent string. Device class defaults to "desktop" when unclassifiable.
func Parse(raw string) (browser, os, device string) {
	ua := strings.ToLower(raw)

	switch {
	case strings.Contains(ua, "edg/"), strings.Contains(ua, "edge"):
		browser = "Edge"
	case strings.Contains(ua, "opr/"), strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"), strings.Contains(ua, "crios"):
		browser = "Chrome"
	case strings.Contains(ua, "firefox"), strings.Contains(ua, "fxios"):
		browser = "Firefox"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	default:
		browser = Unknown
	}

	switch {
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		os = "iOS"
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "mac os x"), strings.Contains(ua, "macintosh"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	default:
		os = Unknown
	}

	switch {
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		device = "tablet"
	// Android without "Mobile" is the tablet form factor.
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		device = "tablet"
	case strings.Contains(ua, "mobi"), strings.Contains(ua, "iphone"), strings.Contains(ua, "ipod"):
		device = "mobile"
	default:
		device = "desktop"
	}

	return browser, os, device
}
