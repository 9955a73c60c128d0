package detection

import (
	"strings"
)

var uaAutomationKeywords = []string{
	"headless", "selenium", "webdriver", "puppeteer",
	"playwright", "phantom", "jsdom", "nightmare",
	"automated", "bot", "crawler", "spider",
}

// ParseUserAgent extracts coarse platform, browser and automation hints.
func ParseUserAgent(userAgent string) UAAnalysis {
	analysis := UAAnalysis{
		Length:             len(userAgent),
		AutomationKeywords: []string{},
	}

	lowerUA := strings.ToLower(userAgent)
	for _, keyword := range uaAutomationKeywords {
		if strings.Contains(lowerUA, keyword) {
			analysis.ContainsAutomation = true
			analysis.AutomationKeywords = append(analysis.AutomationKeywords, keyword)
		}
	}

	analysis.Platform = extractPlatform(lowerUA)
	analysis.Browser = extractBrowser(lowerUA)
	analysis.Mobile = strings.Contains(lowerUA, "mobile") ||
		analysis.Platform == "iOS" || analysis.Platform == "Android"
	return analysis
}

// extractPlatform extracts platform information from user-agent string
func extractPlatform(lowerUA string) string {
	// iOS UAs contain "Mac OS X", Android UAs contain "Linux"
	switch {
	case strings.Contains(lowerUA, "iphone"), strings.Contains(lowerUA, "ipad"):
		return "iOS"
	case strings.Contains(lowerUA, "android"):
		return "Android"
	case strings.Contains(lowerUA, "windows"):
		return "Windows"
	case strings.Contains(lowerUA, "cros"):
		return "ChromeOS"
	case strings.Contains(lowerUA, "mac"):
		return "macOS"
	case strings.Contains(lowerUA, "linux"):
		return "Linux"
	}
	return ""
}

// extractBrowser extracts browser information from user-agent string.
// Chromium derivatives are checked before Chrome.
func extractBrowser(lowerUA string) string {
	switch {
	case strings.Contains(lowerUA, "edg/"), strings.Contains(lowerUA, "edge"):
		return "Edge"
	case strings.Contains(lowerUA, "opr/"):
		return "Opera"
	case strings.Contains(lowerUA, "firefox"), strings.Contains(lowerUA, "fxios"):
		return "Firefox"
	case strings.Contains(lowerUA, "chrome"), strings.Contains(lowerUA, "crios"):
		return "Chrome"
	case strings.Contains(lowerUA, "safari"):
		return "Safari"
	}
	return ""
}
