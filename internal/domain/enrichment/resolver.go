// Package enrichment derives device and geo metadata from request headers.
// Resolution is a pure function over the header map; it keeps no state and
// performs no lookups.
package enrichment

import (
	"net/http"
	"strings"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
)

// Resolve derives device and geo info for one request. Geo headers are
// those stamped by the usual edge proxies; absent headers leave fields
// empty rather than guessing.
func Resolve(h http.Header) (*events.DeviceInfo, *events.GeoInfo) {
	return resolveDevice(h), resolveGeo(h)
}

func resolveDevice(h http.Header) *events.DeviceInfo {
	ua := h.Get("User-Agent")
	device := &events.DeviceInfo{
		Type:    deviceType(ua),
		OS:      operatingSystem(ua),
		Browser: browser(ua),
		Locale:  primaryLocale(h.Get("Accept-Language")),
	}
	if device.Type == "" && device.OS == "" && device.Browser == "" && device.Locale == "" {
		return nil
	}
	return device
}

func resolveGeo(h http.Header) *events.GeoInfo {
	geo := &events.GeoInfo{
		Country: firstHeader(h, "CF-IPCountry", "X-Geo-Country"),
		Region:  h.Get("X-Geo-Region"),
		City:    h.Get("X-Geo-City"),
	}
	if geo.Country == "" && geo.Region == "" && geo.City == "" {
		return nil
	}
	return geo
}

func firstHeader(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func deviceType(ua string) string {
	if ua == "" {
		return ""
	}
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		return "tablet"
	case strings.Contains(lower, "mobi") || strings.Contains(lower, "iphone") || strings.Contains(lower, "android"):
		return "mobile"
	case strings.Contains(lower, "bot") || strings.Contains(lower, "spider") || strings.Contains(lower, "crawl"):
		return "bot"
	default:
		return "desktop"
	}
}

func operatingSystem(ua string) string {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "windows"):
		return "Windows"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad"):
		return "iOS"
	case strings.Contains(lower, "mac os"):
		return "macOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case strings.Contains(lower, "linux"):
		return "Linux"
	default:
		return ""
	}
}

func browser(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/"):
		return "Edge"
	case strings.Contains(ua, "OPR/") || strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return ""
	}
}

// primaryLocale extracts the first language tag from an Accept-Language
// header, dropping any quality weight.
func primaryLocale(accept string) string {
	if accept == "" {
		return ""
	}
	first := accept
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	if i := strings.IndexByte(first, ';'); i >= 0 {
		first = first[:i]
	}
	return strings.TrimSpace(first)
}
