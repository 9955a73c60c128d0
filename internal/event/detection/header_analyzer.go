package detection

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ExpectedHeaders are sent by every mainstream browser on a fetch() post.
var ExpectedHeaders = []string{"User-Agent", "Accept", "Accept-Language", "Accept-Encoding"}

// analyzeHeaders performs comprehensive HTTP header analysis
func analyzeHeaders(headers http.Header) HeaderAnalysis {
	analysis := HeaderAnalysis{
		MissingExpected:    []string{},
		AutomationHeaders:  []string{},
		InconsistentValues: []string{},
		HeaderOrder:        []string{},
		HeaderCount:        len(headers),
	}

	for key := range headers {
		analysis.HeaderOrder = append(analysis.HeaderOrder, strings.ToLower(key))
	}
	sort.Strings(analysis.HeaderOrder)

	analysis.AutomationHeaders = detectAutomationHeaders(headers)
	analysis.MissingExpected = checkMissingHeaders(headers)

	userAgent := headers.Get("User-Agent")
	acceptLanguage := headers.Get("Accept-Language")
	if userAgent != "" && acceptLanguage != "" {
		if isLanguageUAInconsistent(userAgent, acceptLanguage) {
			analysis.InconsistentValues = append(analysis.InconsistentValues, "language-ua-mismatch")
		}
	}

	return analysis
}

var automationKeywords = []string{"headless", "selenium", "webdriver", "puppeteer", "playwright"}

// Headers only automation stacks or devtools set. The presence alone counts.
var automationOnlyHeaders = []string{
	"X-DevTools-Emulate-Network-Conditions-Client-Id",
	"X-Selenium",
	"X-Puppeteer",
	"X-Playwright",
}

// detectAutomationHeaders reports headers that carry automation signatures.
// User-Agent is left to the user agent rules. Results are sorted.
func detectAutomationHeaders(headers http.Header) []string {
	found := []string{}

	for header, values := range headers {
		if http.CanonicalHeaderKey(header) == "User-Agent" {
			continue
		}
		for _, value := range values {
			lowerValue := strings.ToLower(value)
			for _, keyword := range automationKeywords {
				if strings.Contains(lowerValue, keyword) {
					found = append(found, fmt.Sprintf("%s: %s", header, value))
					break
				}
			}
		}
	}

	for _, header := range automationOnlyHeaders {
		if _, ok := headers[http.CanonicalHeaderKey(header)]; ok {
			entry := fmt.Sprintf("%s: %s", header, headers.Get(header))
			if !contains(found, entry) {
				found = append(found, entry)
			}
		}
	}

	sort.Strings(found)
	return found
}

// checkMissingHeaders lists ExpectedHeaders absent from the request
func checkMissingHeaders(headers http.Header) []string {
	missing := []string{}
	for _, expected := range ExpectedHeaders {
		if headers.Get(expected) == "" {
			missing = append(missing, expected)
		}
	}
	return missing
}

// Locale tokens some browsers embed in the user agent, keyed to the
// Accept-Language prefix they imply.
var uaLocaleTokens = map[string]string{
	"zh-cn": "zh",
	"zh-tw": "zh",
	"ja":    "ja",
	"ja-jp": "ja",
	"ko":    "ko",
	"ko-kr": "ko",
}

// isLanguageUAInconsistent checks if Accept-Language contradicts a locale
// token in the User-Agent
func isLanguageUAInconsistent(userAgent, acceptLanguage string) bool {
	lang := strings.ToLower(acceptLanguage)
	tokens := strings.FieldsFunc(strings.ToLower(userAgent), func(r rune) bool {
		return r == '(' || r == ')' || r == ';' || r == ' '
	})
	for _, tok := range tokens {
		if want, ok := uaLocaleTokens[tok]; ok && !strings.Contains(lang, want) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
