package detection

// RequestSignals is everything the server can observe about a collector post
// without trusting its body.
type RequestSignals struct {
	HeaderFingerprint string          `json:"header_fingerprint"`
	Headers           HeaderAnalysis  `json:"headers"`
	Request           RequestAnalysis `json:"request"`
	Timing            TimingAnalysis  `json:"timing"`
}

// HeaderAnalysis contains header-based detection signals
type HeaderAnalysis struct {
	MissingExpected    []string `json:"missingExpected"`
	AutomationHeaders  []string `json:"automationHeaders"`
	InconsistentValues []string `json:"inconsistentValues"`
	HeaderOrder        []string `json:"headerOrder"`
	HeaderCount        int      `json:"count"`
}

// RequestAnalysis contains request payload analysis
type RequestAnalysis struct {
	PayloadEntropy    float64    `json:"payload_entropy"`
	RequestSize       int        `json:"request_size"`
	UserAgentAnalysis UAAnalysis `json:"user_agent"`
}

// UAAnalysis contains user-agent string analysis
type UAAnalysis struct {
	Length             int      `json:"length"`
	ContainsAutomation bool     `json:"contains_automation"`
	AutomationKeywords []string `json:"automation_keywords"`
	Platform           string   `json:"platform"`
	Browser            string   `json:"browser"`
	Mobile             bool     `json:"mobile"`
}

// TimingAnalysis describes the gap since the previous post from the same client.
type TimingAnalysis struct {
	RequestInterval    float64 `json:"intervalMs"`
	IntervalPrecision  int     `json:"intervalPrecision"` // largest round unit the interval is a multiple of
	RequestsPerSecond  float64 `json:"requestsPerSecond"`
	HasPreviousRequest bool    `json:"hasPrevious"`
}
