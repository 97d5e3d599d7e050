package enrichment

import (
	"net/http"
	"testing"
)

const (
	chromeMacUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	safariIPadUA = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	firefoxWinUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0"
	androidUA    = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Mobile Safari/537.36"
	botUA        = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func headers(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i < len(kv)-1; i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestResolveDevice(t *testing.T) {
	cases := []struct {
		name                   string
		ua                     string
		wantType, wantOS, wantBrowser string
	}{
		{"chrome on mac", chromeMacUA, "desktop", "macOS", "Chrome"},
		{"safari on ipad", safariIPadUA, "tablet", "iOS", "Safari"},
		{"firefox on windows", firefoxWinUA, "desktop", "Windows", "Firefox"},
		{"chrome on android", androidUA, "mobile", "Android", "Chrome"},
		{"crawler", botUA, "bot", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			device, _ := Resolve(headers("User-Agent", tc.ua))
			if device == nil {
				t.Fatal("device = nil")
			}
			if device.Type != tc.wantType {
				t.Errorf("type = %q, want %q", device.Type, tc.wantType)
			}
			if device.OS != tc.wantOS {
				t.Errorf("os = %q, want %q", device.OS, tc.wantOS)
			}
			if device.Browser != tc.wantBrowser {
				t.Errorf("browser = %q, want %q", device.Browser, tc.wantBrowser)
			}
		})
	}
}

func TestResolveGeo(t *testing.T) {
	_, geo := Resolve(headers("CF-IPCountry", "DE", "X-Geo-City", "Berlin"))
	if geo == nil {
		t.Fatal("geo = nil")
	}
	if geo.Country != "DE" || geo.City != "Berlin" || geo.Region != "" {
		t.Fatalf("geo = %+v", geo)
	}

	// Fallback header order.
	_, geo = Resolve(headers("X-Geo-Country", "FR"))
	if geo == nil || geo.Country != "FR" {
		t.Fatalf("geo = %+v, want country FR", geo)
	}
}

func TestResolveEmptyHeaders(t *testing.T) {
	device, geo := Resolve(http.Header{})
	if device != nil {
		t.Fatalf("device = %+v, want nil", device)
	}
	if geo != nil {
		t.Fatalf("geo = %+v, want nil", geo)
	}
}

func TestPrimaryLocale(t *testing.T) {
	device, _ := Resolve(headers("Accept-Language", "en-GB,en;q=0.9,de;q=0.8"))
	if device == nil || device.Locale != "en-GB" {
		t.Fatalf("locale = %+v, want en-GB", device)
	}
}
