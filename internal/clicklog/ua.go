package clicklog

import "strings"

// Device types stored on click rows.
const (
	DeviceMobile  = "MOBILE"
	DeviceTablet  = "TABLET"
	DeviceDesktop = "DESKTOP"
	DeviceOther   = "OTHER"
)

// ParseDeviceType classifies a user agent by substring heuristics,
// first match wins.
func ParseDeviceType(userAgent string) string {
	if userAgent == "" {
		return DeviceOther
	}

	ua := strings.ToLower(userAgent)

	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") {
		return DeviceMobile
	}
	if strings.Contains(ua, "tablet") {
		return DeviceTablet
	}

	return DeviceDesktop
}

// ParseBrowser extracts a browser family from a user agent. Edge ships a
// chrome/ token and Chrome ships a safari/ token, so order matters.
func ParseBrowser(userAgent string) string {
	if userAgent == "" {
		return "Unknown"
	}

	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg/"):
		return "Edge"
	case strings.Contains(ua, "chrome/"):
		return "Chrome"
	case strings.Contains(ua, "firefox/"):
		return "Firefox"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	case strings.Contains(ua, "opera/"), strings.Contains(ua, "opr/"):
		return "Opera"
	}

	return "Other"
}
