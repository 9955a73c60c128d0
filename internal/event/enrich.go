package event

import (
	"net/http"
	"net/url"
	"time"

	"github.com/shortontech/goprint/internal/event/detection"
)

// Server holds what the server already derived for this request.
type Server struct {
	IPHash   string
	Analysis detection.RequestSignals
}

// Normalize fields that the server can set/augment safely.
func EnrichServerFields(r *http.Request, e *Event, srv Server) {
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.Type == "" {
		e.Type = TypeFingerprint
	}

	// Device as the HTTP client presents itself
	if e.Device.UA == "" {
		e.Device.UA = r.UserAgent()
	}
	if e.Device.UA != "" {
		ua := detection.ParseUserAgent(e.Device.UA)
		if e.Device.OS == "" {
			e.Device.OS = ua.Platform
		}
		if e.Device.Browser == "" {
			e.Device.Browser = ua.Browser
		}
		e.Device.Mobile = e.Device.Mobile || ua.Mobile
	}

	// The collector posts from the page it runs on
	if e.Page.URL == "" {
		e.Page.URL = r.Referer()
	}
	if e.Page.URL != "" && e.Page.Hostname == "" {
		if u, err := url.Parse(e.Page.URL); err == nil && u != nil {
			e.Page.Hostname = u.Hostname()
		}
	}
	if e.Page.Origin == "" {
		e.Page.Origin = r.Header.Get("Origin")
	}

	e.Consent = consentFromRequest(r)

	e.Server.IP = srv.IPHash
	e.Server.Detection = srv.Analysis
}

func consentFromRequest(r *http.Request) ConsentInfo {
	return ConsentInfo{
		DoNotTrack:           r.Header.Get("DNT") == "1",
		GlobalPrivacyControl: r.Header.Get("Sec-GPC") == "1",
	}
}

// DoNotTrack reports whether the request asks not to be tracked.
func DoNotTrack(r *http.Request) bool {
	c := consentFromRequest(r)
	return c.DoNotTrack || c.GlobalPrivacyControl
}
