package track

import "strings"

// OS, browser and device classification uses plain substring matching, the
// same checks the site shipped. Unusual user agents will misclassify; the
// analytics consumers treat these as hints, not truth.

func DetectOS(ua string) string {
	switch {
	case strings.Contains(ua, "Win"):
		return "Windows"
	case strings.Contains(ua, "Mac"):
		return "MacOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "iOS"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return "iOS"
	}
	return "Unknown"
}

func DetectBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "Chrome"):
		return "Chrome"
	case strings.Contains(ua, "Safari"):
		return "Safari"
	case strings.Contains(ua, "Firefox"):
		return "Firefox"
	case strings.Contains(ua, "Edge"):
		return "Edge"
	}
	return "Unknown"
}

func DetectDevice(ua string) string {
	switch {
	case strings.Contains(ua, "iPad"), strings.Contains(ua, "Tablet"):
		return "Tablet"
	case strings.Contains(ua, "Mobi"), strings.Contains(ua, "iPhone"), strings.Contains(ua, "Android"):
		return "Mobile"
	}
	return "Desktop"
}
