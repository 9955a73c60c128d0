package collect

import (
	"context"
	"net/http"
	"time"

	"github.com/shortontech/goprint/internal/event/detection"
	"github.com/shortontech/goprint/internal/signals"
)

// RequestConfig controls the server-derived signals.
type RequestConfig struct {
	// TrustProxy honours X-Forwarded-For and X-Real-IP.
	TrustProxy bool
	// IPSecret keys the daily client IP hash. Empty keeps raw addresses.
	IPSecret string
	// Tracker feeds requestTiming. Nil marks the source unsupported.
	Tracker detection.TimingTracker
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c RequestConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Request holds what the server observed about one post.
type Request struct {
	Analysis detection.RequestSignals
	IPHash   string
	sources  []signals.Source
}

// Sources returns httpHeaders, acceptLanguage, clientIP and requestTiming
// in that order.
func (r *Request) Sources() []signals.Source { return r.sources }

// FromRequest analyzes r once and builds the request sources from the result.
func FromRequest(r *http.Request, body []byte, cfg RequestConfig) *Request {
	now := cfg.now()
	analysis := detection.Analyze(r, body)
	ipHash := detection.HashIP(detection.ClientIP(r, cfg.TrustProxy), cfg.IPSecret, now)

	req := &Request{Analysis: analysis, IPHash: ipHash}

	headers := map[string]any{
		"fingerprint":       analysis.HeaderFingerprint,
		"missingExpected":   orEmpty(analysis.Headers.MissingExpected),
		"automationHeaders": orEmpty(analysis.Headers.AutomationHeaders),
		"count":             analysis.Headers.HeaderCount,
	}

	acceptLanguage := signals.Failed(signals.ReasonUnavailable, "header not sent")
	if al := r.Header.Get("Accept-Language"); al != "" {
		acceptLanguage = signals.Ok(al)
	}

	clientIP := signals.Failed(signals.ReasonUnavailable, "no client address")
	if ipHash != "" {
		clientIP = signals.Ok(ipHash)
	}

	req.sources = []signals.Source{
		valueSource(signals.HTTPHeaders, meta(signals.HTTPHeaders), signals.Ok(headers)),
		valueSource(signals.AcceptLanguage, meta(signals.AcceptLanguage), acceptLanguage),
		valueSource(signals.ClientIP, meta(signals.ClientIP), clientIP),
		timingSource(cfg.Tracker, ipHash, now),
	}
	return req
}

// timingSource looks up the previous post from the same client. The tracker
// round-trip runs inside Collect so the per-source timeout bounds it.
func timingSource(tracker detection.TimingTracker, key string, now time.Time) signals.Source {
	return &signals.Func{
		ID:    signals.RequestTiming,
		Meta:  meta(signals.RequestTiming),
		Probe: func() bool { return tracker != nil && key != "" },
		Fn: func(ctx context.Context) (any, error) {
			t, err := detection.AnalyzeTiming(ctx, tracker, key, now)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"intervalMs":        t.RequestInterval,
				"intervalPrecision": t.IntervalPrecision,
				"hasPrevious":       t.HasPreviousRequest,
			}, nil
		},
	}
}

func meta(name signals.Name) signals.Metadata {
	m, _ := signals.MetadataFor(name)
	return m
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
