package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/goprint/internal/event/detection"
	"github.com/shortontech/goprint/internal/fingerprint"
	"github.com/shortontech/goprint/internal/signals"
	"github.com/shortontech/goprint/internal/suspicion"
)

// Event types.
const (
	TypeFingerprint = "fingerprint"
	TypeSignals     = "signals"
	TypeTest        = "test"
)

// Event is the record fanned out to sinks. Optional fields are omitted when empty.
type Event struct {
	EventID string `json:"event_id,omitempty"`
	TS      string `json:"ts,omitempty"` // ISO8601
	Type    string `json:"type,omitempty"`

	Fingerprint string  `json:"fingerprint,omitempty"`
	Confidence  int     `json:"confidence"`
	Entropy     float64 `json:"entropy_bits"`
	DurationMS  float64 `json:"duration_ms,omitempty"`

	Signals     *signals.Set             `json:"signals,omitempty"`
	Custom      map[string]any           `json:"custom,omitempty"`
	Suspicion   *suspicion.Result        `json:"suspicion,omitempty"`
	Diagnostics *fingerprint.Diagnostics `json:"diagnostics,omitempty"`

	Page    PageInfo    `json:"page,omitempty"`
	Device  DeviceInfo  `json:"device,omitempty"`
	Server  ServerMeta  `json:"server,omitempty"`
	Consent ConsentInfo `json:"consent,omitempty"`
}

// --- Page the collector ran on ---

type PageInfo struct {
	URL      string `json:"url,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// --- Device (from the request User-Agent, not the posted one) ---

type DeviceInfo struct {
	UA      string `json:"ua,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	Mobile  bool   `json:"mobile,omitempty"`
}

// --- Server enrich ---

type ServerMeta struct {
	IP        string                   `json:"ip_hash,omitempty"` // daily HMAC of client IP when a secret is set
	Detection detection.RequestSignals `json:"detection"`
}

// --- Consent ---

type ConsentInfo struct {
	DoNotTrack           bool `json:"dnt,omitempty"`
	GlobalPrivacyControl bool `json:"gpc,omitempty"`
}

// FromResult builds an event around a fingerprint result.
func FromResult(res *fingerprint.Result) *Event {
	e := &Event{
		EventID:     res.ID,
		Type:        TypeFingerprint,
		Fingerprint: res.Fingerprint,
		Confidence:  res.Confidence,
		Entropy:     res.Entropy,
		DurationMS:  res.DurationMS,
		Signals:     res.Signals,
		Custom:      res.Custom,
		Suspicion:   res.Suspicion,
		Diagnostics: &res.Diagnostics,
	}
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	return e
}

// FromSignals builds an event for a collect-only call.
func FromSignals(set *signals.Set) *Event {
	return &Event{
		EventID: uuid.NewString(),
		Type:    TypeSignals,
		Signals: set,
	}
}

// Key partitions events in ordered sinks. Events of one device share a key.
func (e *Event) Key() string {
	if e.Fingerprint != "" {
		return e.Fingerprint
	}
	return e.EventID
}

// RiskLevel is "" when no suspicion analysis ran.
func (e *Event) RiskLevel() string {
	if e.Suspicion == nil {
		return ""
	}
	return string(e.Suspicion.RiskLevel)
}

// RiskScore is -1 when no suspicion analysis ran.
func (e *Event) RiskScore() int {
	if e.Suspicion == nil {
		return -1
	}
	return e.Suspicion.Score
}

// Time parses TS, falling back to now.
func (e *Event) Time() time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, e.TS); err == nil {
		return ts
	}
	return time.Now().UTC()
}
