package detection

import (
	"math"
	"net/http"
)

// analyzeRequest performs request payload analysis
func analyzeRequest(r *http.Request, body []byte) RequestAnalysis {
	analysis := RequestAnalysis{
		RequestSize: len(body),
	}
	if len(body) > 0 {
		analysis.PayloadEntropy = calculateEntropy(body)
	}
	analysis.UserAgentAnalysis = ParseUserAgent(r.UserAgent())
	return analysis
}

// calculateEntropy returns the Shannon entropy of data in bits per byte
func calculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	entropy := 0.0
	length := float64(len(data))
	for _, count := range freq {
		if count > 0 {
			p := float64(count) / length
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
