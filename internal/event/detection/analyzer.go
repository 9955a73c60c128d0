package detection

import (
	"net/http"
)

// Analyze inspects headers and body of a collector post. Timing is analyzed
// separately because it needs a tracker round-trip.
func Analyze(r *http.Request, body []byte) RequestSignals {
	return RequestSignals{
		Headers:           analyzeHeaders(r.Header),
		HeaderFingerprint: generateHeaderFingerprint(r.Header),
		Request:           analyzeRequest(r, body),
	}
}
