package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"

	"github.com/shortontech/goprint/internal/event"
	httpx "github.com/shortontech/goprint/internal/http"
	"github.com/shortontech/goprint/internal/suspicion"
)

// testProfile is a canned collector post with the request headers a real
// client of that kind would send.
type testProfile struct {
	Name    string
	Headers map[string]string
	Signals map[string]any
	Custom  map[string]any
}

type testOutcome struct {
	Profile     string
	Status      int
	Fingerprint string
	Confidence  int
	RiskLevel   suspicion.RiskLevel
}

var browserHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Encoding": "gzip, deflate, br",
}

func withHeaders(ua, lang string) map[string]string {
	h := map[string]string{"User-Agent": ua, "Accept-Language": lang}
	for k, v := range browserHeaders {
		h[k] = v
	}
	return h
}

const (
	chromeUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneUA     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	firefoxUA    = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	headlessUA   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36"
	crawlerUA    = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	sampleCanvas = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAASwAAACWCAYAAABkW7XSAAAAAXNSR0IArs4c6QAAIABJREFUeF7tnXl0VdW9x"
)

// generateTestProfiles covers the clean, degraded and automated cases.
func generateTestProfiles() []testProfile {
	return []testProfile{
		{
			Name:    "desktop-chrome",
			Headers: withHeaders(chromeUA, "en-US,en;q=0.9"),
			Signals: map[string]any{
				"userAgent":    chromeUA,
				"platform":     "Win32",
				"languages":    map[string]any{"language": "en-US", "languages": []any{"en-US", "en"}},
				"timezone":     map[string]any{"timezone": "America/New_York", "offset": 300},
				"screen":       map[string]any{"width": 1920, "height": 1080, "colorDepth": 24, "pixelRatio": 1},
				"hardware":     map[string]any{"hardwareConcurrency": 8, "deviceMemory": 8},
				"canvas":       map[string]any{"data": sampleCanvas},
				"webgl":        map[string]any{"vendor": "Google Inc. (NVIDIA)", "renderer": "ANGLE (NVIDIA, NVIDIA GeForce GTX 1060 Direct3D11 vs_5_0 ps_5_0)"},
				"audio":        map[string]any{"sampleRate": 48000, "channelCount": 2},
				"fonts":        []any{"Arial", "Calibri", "Segoe UI"},
				"plugins":      []any{"PDF Viewer", "Chrome PDF Viewer"},
				"touchSupport": map[string]any{"maxTouchPoints": 0},
				"window":       map[string]any{"outerWidth": 1920, "outerHeight": 1040, "chrome": true},
				"automation":   map[string]any{"webdriver": false},
				"integrity":    map[string]any{"accessors": map[string]any{"webdriver": "function get webdriver() { [native code] }"}},
				"battery":      "unavailable",
				"network":      map[string]any{"effectiveType": "4g"},
				"permissions":  map[string]any{"notifications": "default"},
			},
			Custom: map[string]any{"accountId": "acct_1001"},
		},
		{
			Name:    "iphone-safari",
			Headers: withHeaders(iphoneUA, "fr-FR,fr;q=0.9"),
			Signals: map[string]any{
				"userAgent":    iphoneUA,
				"platform":     "iPhone",
				"languages":    map[string]any{"language": "fr-FR", "languages": []any{"fr-FR"}},
				"timezone":     map[string]any{"timezone": "Europe/Paris", "offset": -60},
				"screen":       map[string]any{"width": 393, "height": 852, "colorDepth": 24, "pixelRatio": 3},
				"hardware":     map[string]any{"hardwareConcurrency": 6},
				"canvas":       map[string]any{"data": sampleCanvas},
				"webgl":        map[string]any{"vendor": "Apple Inc.", "renderer": "Apple GPU"},
				"audio":        map[string]any{"sampleRate": 44100, "channelCount": 2},
				"fonts":        []any{"Helvetica Neue", "Avenir"},
				"plugins":      []any{},
				"touchSupport": map[string]any{"maxTouchPoints": 5},
				"window":       map[string]any{"outerWidth": 393, "outerHeight": 852},
				"automation":   map[string]any{"webdriver": false},
				"integrity":    map[string]any{},
				"battery":      "unavailable",
				"network":      "unavailable",
				"permissions":  map[string]any{"notifications": "default"},
			},
		},
		{
			Name:    "privacy-hardened-firefox",
			Headers: withHeaders(firefoxUA, "en-US,en;q=0.5"),
			Signals: map[string]any{
				"userAgent":    firefoxUA,
				"platform":     "Linux x86_64",
				"languages":    map[string]any{"language": "en-US", "languages": []any{"en-US", "en"}},
				"timezone":     map[string]any{"timezone": "UTC", "offset": 0},
				"screen":       map[string]any{"width": 1366, "height": 768, "colorDepth": 24},
				"hardware":     map[string]any{"hardwareConcurrency": 2},
				"canvas":       map[string]any{"error": "error", "message": "canvas randomized"},
				"webgl":        map[string]any{"error": "unsupported"},
				"audio":        map[string]any{"error": "timeout"},
				"fonts":        []any{"DejaVu Sans"},
				"touchSupport": map[string]any{"maxTouchPoints": 0},
				"window":       map[string]any{"outerWidth": 1366, "outerHeight": 740},
				"automation":   map[string]any{"webdriver": false},
			},
		},
		{
			Name:    "headless-chrome",
			Headers: map[string]string{"User-Agent": headlessUA},
			Signals: map[string]any{
				"userAgent":  headlessUA,
				"platform":   "Linux x86_64",
				"screen":     map[string]any{"width": 800, "height": 600, "colorDepth": 24},
				"webgl":      map[string]any{"vendor": "Google Inc.", "renderer": "Google SwiftShader"},
				"window":     map[string]any{"outerWidth": 0, "outerHeight": 0, "chrome": false},
				"automation": map[string]any{"webdriver": true, "globals": []any{"__playwright"}},
			},
		},
		{
			Name:    "crawler",
			Headers: map[string]string{"User-Agent": crawlerUA},
			Signals: map[string]any{
				"userAgent": crawlerUA,
			},
		},
	}
}

// runTestMode posts every profile through the live handler chain and logs
// the outcome. Events are tagged as test events before reaching the sinks.
func runTestMode(env httpx.Env) []testOutcome {
	log.Println("🧪 TEST MODE: fingerprinting canned profiles...")

	emit := env.Emit
	env.Emit = func(e event.Event) {
		e.Type = event.TypeTest
		if emit != nil {
			emit(e)
		}
	}
	// canned posts are neither signed nor opted out
	env.HMACAuth = nil
	env.Cfg.DNTRespect = false
	env.Metrics = nil
	h := httpx.NewMux(env)

	profiles := generateTestProfiles()
	outcomes := make([]testOutcome, 0, len(profiles))
	for i, p := range profiles {
		out := postProfile(h, p)
		outcomes = append(outcomes, out)
		log.Printf("📊 profile %d/%d %s: status=%d fp=%.16s confidence=%d risk=%s",
			i+1, len(profiles), p.Name, out.Status, out.Fingerprint, out.Confidence, out.RiskLevel)
	}

	log.Println("✅ TEST MODE: all profiles sent")
	return outcomes
}

func postProfile(h http.Handler, p testProfile) testOutcome {
	out := testOutcome{Profile: p.Name}

	body, err := json.Marshal(map[string]any{"signals": p.Signals, "customData": p.Custom})
	if err != nil {
		log.Printf("testmode: %s: %v", p.Name, err)
		return out
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/fingerprint", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	out.Status = w.Code
	if w.Code != http.StatusOK {
		return out
	}

	var res struct {
		Fingerprint string            `json:"fingerprint"`
		Confidence  int               `json:"confidence"`
		Suspicion   *suspicion.Result `json:"suspicion"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		log.Printf("testmode: %s: decode response: %v", p.Name, err)
		return out
	}
	out.Fingerprint = res.Fingerprint
	out.Confidence = res.Confidence
	if res.Suspicion != nil {
		out.RiskLevel = res.Suspicion.RiskLevel
	}
	return out
}
