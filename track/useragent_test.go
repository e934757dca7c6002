package track

import "testing"

func TestDetectOS(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", "Windows"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15", "MacOS"},
		{"Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/115.0", "Linux"},
		// Android user agents also contain "Linux"; substring order wins.
		{"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36", "Linux"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X)", "MacOS"},
		{"curl/8.0.1", "Unknown"},
	}
	for _, tc := range cases {
		if got := DetectOS(tc.ua); got != tc.want {
			t.Errorf("DetectOS(%q) = %q, want %q", tc.ua, got, tc.want)
		}
	}
}

func TestDetectBrowser(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36", "Chrome"},
		{"Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15 Version/16.1 Safari/605.1.15", "Safari"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0", "Firefox"},
		// Edge ships a Chrome token first, so it classifies as Chrome.
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36 Edge/120.0", "Chrome"},
		{"curl/8.0.1", "Unknown"},
	}
	for _, tc := range cases {
		if got := DetectBrowser(tc.ua); got != tc.want {
			t.Errorf("DetectBrowser(%q) = %q, want %q", tc.ua, got, tc.want)
		}
	}
}

func TestDetectDevice(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "Desktop"},
		{"Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X)", "Tablet"},
		{"Mozilla/5.0 (Linux; Android 13; Pixel 7) Mobile Safari/537.36", "Mobile"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X)", "Mobile"},
	}
	for _, tc := range cases {
		if got := DetectDevice(tc.ua); got != tc.want {
			t.Errorf("DetectDevice(%q) = %q, want %q", tc.ua, got, tc.want)
		}
	}
}
