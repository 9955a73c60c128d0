package detection

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
)

// Headers whose values are stable for one browser install. Everything else
// only contributes its name.
var fingerprintValueHeaders = map[string]bool{
	"accept":             true,
	"accept-encoding":    true,
	"accept-language":    true,
	"user-agent":         true,
	"sec-ch-ua":          true,
	"sec-ch-ua-mobile":   true,
	"sec-ch-ua-platform": true,
}

// Headers that vary per request or per hop and are left out entirely.
var fingerprintSkipHeaders = map[string]bool{
	"content-length":  true,
	"cookie":          true,
	"x-forwarded-for": true,
	"x-real-ip":       true,
	"x-request-id":    true,
	"x-goprint-hmac":  true,
	"traceparent":     true,
}

// generateHeaderFingerprint hashes the sorted header names plus the values
// of a few stable headers. Returns the first 8 bytes as hex.
func generateHeaderFingerprint(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for key := range headers {
		lk := strings.ToLower(key)
		if fingerprintSkipHeaders[lk] {
			continue
		}
		keys = append(keys, lk)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if fingerprintValueHeaders[key] {
			parts = append(parts, key+":"+headers.Get(key))
			continue
		}
		parts = append(parts, key)
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:8])
}
