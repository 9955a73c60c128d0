package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shortontech/goprint/internal/event"
	"github.com/shortontech/goprint/internal/event/detection"
	"github.com/shortontech/goprint/internal/signals"
	"github.com/shortontech/goprint/internal/suspicion"
	"github.com/shortontech/goprint/pkg/config"
)

const desktopPayload = `{
	"signals": {
		"userAgent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"platform": "Win32",
		"languages": {"language": "en-US", "languages": ["en-US", "en"]},
		"timezone": {"timezone": "America/New_York", "offset": 300},
		"screen": {"width": 1920, "height": 1080, "colorDepth": 24, "pixelRatio": 1},
		"hardware": {"hardwareConcurrency": 8, "deviceMemory": 8},
		"canvas": {"data": "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAASwAAACWCAYAAABkW7XSAAAAAXNSR0IArs4c6QAAIABJREFUeF7tnXl0VdW9x"},
		"webgl": {"vendor": "Google Inc. (NVIDIA)", "renderer": "ANGLE (NVIDIA, NVIDIA GeForce GTX 1060 Direct3D11 vs_5_0 ps_5_0)"},
		"audio": {"sampleRate": 48000, "channelCount": 2},
		"fonts": ["Arial", "Calibri", "Segoe UI"],
		"plugins": ["PDF Viewer", "Chrome PDF Viewer"],
		"touchSupport": {"maxTouchPoints": 0, "touchEvent": false},
		"window": {"outerWidth": 1920, "outerHeight": 1040, "chrome": true},
		"automation": {"webdriver": false, "globals": []},
		"integrity": {"accessors": {"webdriver": "function get webdriver() { [native code] }"}},
		"battery": "unavailable",
		"network": {"effectiveType": "4g"},
		"permissions": {"notifications": "default"}
	},
	"customData": {"plan": "pro"}
}`

func testEnv(emitted *[]event.Event) Env {
	return Env{
		Cfg: config.Config{
			DNTRespect:   true,
			MaxBodyBytes: 1024 * 1024,
			Suspicion:    true,
			StableOnly:   true,
			TimeoutMS:    1000,
		},
		Emit: func(e event.Event) {
			if emitted != nil {
				*emitted = append(*emitted, e)
			}
		},
		Engine: suspicion.NewEngine(nil),
	}
}

func post(h http.Handler, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// TestHealthz tests the health check endpoint
func TestHealthz(t *testing.T) {
	env := Env{}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	env.Healthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); body != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
}

// TestReadyz tests the readiness check endpoint
func TestReadyz(t *testing.T) {
	t.Run("returns 200 ready", func(t *testing.T) {
		env := Env{}
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		w := httptest.NewRecorder()

		env.Readyz(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}
		if body := w.Body.String(); body != "ready" {
			t.Errorf("body = %q, want %q", body, "ready")
		}
	})

	t.Run("returns 503 when a dependency is down", func(t *testing.T) {
		env := Env{Ready: func(ctx context.Context) error { return errors.New("postgres: connection refused") }}
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		w := httptest.NewRecorder()

		env.Readyz(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("bounds the readiness check", func(t *testing.T) {
		var deadline time.Time
		env := Env{Ready: func(ctx context.Context) error {
			deadline, _ = ctx.Deadline()
			return nil
		}}
		env.Readyz(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if deadline.IsZero() {
			t.Error("readiness check should run under a deadline")
		}
	})
}

// TestHMACScript tests the HMAC client script endpoint
func TestHMACScript(t *testing.T) {
	t.Run("returns 404 when HMAC not configured", func(t *testing.T) {
		env := Env{HMACAuth: nil}
		req := httptest.NewRequest(http.MethodGet, "/hmac.js", nil)
		w := httptest.NewRecorder()

		env.HMACScript(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("returns script when HMAC configured", func(t *testing.T) {
		auth := NewHMACAuth("test-secret", "", false, false)
		env := Env{HMACAuth: auth}
		req := httptest.NewRequest(http.MethodGet, "/hmac.js", nil)
		w := httptest.NewRecorder()

		env.HMACScript(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/javascript" {
			t.Errorf("Content-Type = %q, want application/javascript", ct)
		}
		cacheControl := w.Header().Get("Cache-Control")
		if !strings.Contains(cacheControl, "private") {
			t.Errorf("per-client script must not be shared by caches, got %q", cacheControl)
		}
		if !strings.Contains(w.Body.String(), auth.ClientKeyBase64(req)) {
			t.Error("script should embed the caller's key")
		}
	})
}

// TestHMACPublicKey tests the HMAC public key endpoint
func TestHMACPublicKey(t *testing.T) {
	t.Run("returns 404 when HMAC not configured", func(t *testing.T) {
		env := Env{HMACAuth: nil}
		req := httptest.NewRequest(http.MethodGet, "/hmac/public-key", nil)
		w := httptest.NewRecorder()

		env.HMACPublicKey(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("returns public key JSON when HMAC configured", func(t *testing.T) {
		env := Env{HMACAuth: NewHMACAuth("test-secret", "", false, false)}
		req := httptest.NewRequest(http.MethodGet, "/hmac/public-key", nil)
		w := httptest.NewRecorder()

		env.HMACPublicKey(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		var result map[string]string
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode JSON response: %v", err)
		}
		if result["public_key"] == "" {
			t.Error("public_key should not be empty")
		}
		if result["algorithm"] != "HMAC-SHA256" {
			t.Errorf("algorithm = %q, want HMAC-SHA256", result["algorithm"])
		}
		if result["header"] != HMACHeader {
			t.Errorf("header = %q, want %s", result["header"], HMACHeader)
		}
	})
}

func TestSources(t *testing.T) {
	h := NewMux(testEnv(nil))
	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Sources []struct {
			Name    string  `json:"name"`
			Weight  float64 `json:"weight"`
			Entropy float64 `json:"entropy_bits"`
			Stable  bool    `json:"stable"`
		} `json:"sources"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := len(signals.ClientNames) + len(signals.RequestNames)
	if len(resp.Sources) != want {
		t.Fatalf("got %d sources, want %d", len(resp.Sources), want)
	}
	if resp.Sources[0].Name != string(signals.UserAgent) {
		t.Errorf("first source = %q, want %q", resp.Sources[0].Name, signals.UserAgent)
	}
	if last := resp.Sources[want-1]; last.Name != string(signals.RequestTiming) || last.Stable {
		t.Errorf("last source = %+v, want unstable %q", last, signals.RequestTiming)
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("clean desktop post", func(t *testing.T) {
		var emitted []event.Event
		w := post(NewMux(testEnv(&emitted)), "/v1/fingerprint", desktopPayload, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d, body %s", w.Code, w.Body.String())
		}

		var res struct {
			ID          string `json:"id"`
			Fingerprint string `json:"fingerprint"`
			Confidence  int    `json:"confidence"`
			Custom      map[string]any
			Suspicion   *suspicion.Result `json:"suspicion"`
		}
		if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(res.Fingerprint) != 64 {
			t.Errorf("fingerprint %q is not a hex SHA-256", res.Fingerprint)
		}
		if res.Confidence <= 0 || res.Confidence >= 100 {
			t.Errorf("confidence = %d, want partial coverage", res.Confidence)
		}
		if res.Custom["plan"] != "pro" {
			t.Errorf("custom = %v", res.Custom)
		}
		if res.Suspicion == nil {
			t.Fatal("suspicion analysis should run by default")
		}
		if res.Suspicion.RiskLevel == suspicion.RiskHigh {
			t.Errorf("clean desktop rated %s: %+v", res.Suspicion.RiskLevel, res.Suspicion.Signals)
		}

		if len(emitted) != 1 {
			t.Fatalf("emitted %d events, want 1", len(emitted))
		}
		evt := emitted[0]
		if evt.Type != event.TypeFingerprint || evt.Fingerprint != res.Fingerprint || evt.EventID != res.ID {
			t.Errorf("event = %+v does not match result", evt)
		}
		if evt.TS == "" || evt.Device.Browser == "" {
			t.Errorf("event was not enriched: %+v", evt)
		}
	})

	t.Run("same post gives the same fingerprint", func(t *testing.T) {
		env := testEnv(nil)
		env.Tracker = detection.NewMemoryTimingTracker(time.Hour)
		h := NewMux(env)

		type result struct {
			Fingerprint string
			Signals     map[string]json.RawMessage
		}
		var a, b result
		_ = json.NewDecoder(post(h, "/v1/fingerprint", desktopPayload, nil).Body).Decode(&a)
		_ = json.NewDecoder(post(h, "/v1/fingerprint", desktopPayload, nil).Body).Decode(&b)
		if a.Fingerprint == "" || a.Fingerprint != b.Fingerprint {
			t.Errorf("fingerprints differ: %q vs %q", a.Fingerprint, b.Fingerprint)
		}
		if bytes.Equal(a.Signals["requestTiming"], b.Signals["requestTiming"]) {
			t.Errorf("requestTiming should change between posts, got %s twice", a.Signals["requestTiming"])
		}
	})

	t.Run("unstable request signals reach the digest when asked", func(t *testing.T) {
		env := testEnv(nil)
		env.Cfg.StableOnly = false
		env.Tracker = detection.NewMemoryTimingTracker(time.Hour)
		h := NewMux(env)
		var a, b struct{ Fingerprint string }
		_ = json.NewDecoder(post(h, "/v1/fingerprint", desktopPayload, nil).Body).Decode(&a)
		_ = json.NewDecoder(post(h, "/v1/fingerprint", desktopPayload, nil).Body).Decode(&b)
		if a.Fingerprint == b.Fingerprint {
			t.Errorf("fingerprint %q ignored requestTiming", a.Fingerprint)
		}
	})

	t.Run("headless automation is high risk", func(t *testing.T) {
		body := `{"signals":{
			"userAgent":"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
			"automation":{"webdriver":true}
		}}`
		w := post(NewMux(testEnv(nil)), "/v1/fingerprint", body, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d", w.Code)
		}
		var res struct{ Suspicion *suspicion.Result }
		if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
			t.Fatal(err)
		}
		if res.Suspicion == nil || res.Suspicion.RiskLevel != suspicion.RiskHigh {
			t.Fatalf("suspicion = %+v, want HIGH", res.Suspicion)
		}
		ids := map[string]bool{}
		for _, s := range res.Suspicion.Signals {
			ids[s.ID] = true
		}
		if !ids["webdriver"] || !ids["headless"] {
			t.Errorf("fired rules = %v", ids)
		}
	})

	t.Run("client can turn suspicion analysis off", func(t *testing.T) {
		body := `{"signals":{"userAgent":"HeadlessChrome"},"options":{"includeSuspicionAnalysis":false}}`
		w := post(NewMux(testEnv(nil)), "/v1/fingerprint", body, nil)
		if strings.Contains(w.Body.String(), `"suspicion"`) {
			t.Errorf("suspicion should be omitted: %s", w.Body.String())
		}
	})

	errorCases := []struct {
		name        string
		body        string
		contentType string
		header      map[string]string
		env         func(Env) Env
		wantStatus  int
	}{
		{name: "malformed JSON", body: `{"signals":`, wantStatus: http.StatusBadRequest},
		{name: "no signals", body: `{"signals":{}}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "wrong content type", body: desktopPayload, contentType: "application/xml", wantStatus: http.StatusUnsupportedMediaType},
		{name: "do not track", body: desktopPayload, header: map[string]string{"DNT": "1"}, wantStatus: http.StatusAccepted},
		{name: "global privacy control", body: desktopPayload, header: map[string]string{"Sec-GPC": "1"}, wantStatus: http.StatusAccepted},
		{
			name:       "body too large",
			body:       `{"signals":{"userAgent":"` + strings.Repeat("a", 2048) + `"}}`,
			env:        func(e Env) Env { e.Cfg.MaxBodyBytes = 1024; return e },
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "missing signature",
			body:       desktopPayload,
			env:        func(e Env) Env { e.HMACAuth = NewHMACAuth("secret", "", true, false); return e },
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			var emitted []event.Event
			env := testEnv(&emitted)
			if tt.env != nil {
				env = tt.env(env)
			}
			header := map[string]string{}
			for k, v := range tt.header {
				header[k] = v
			}
			if tt.contentType != "" {
				header["Content-Type"] = tt.contentType
			}

			w := post(NewMux(env), "/v1/fingerprint", tt.body, header)
			if w.Code != tt.wantStatus {
				t.Errorf("status code = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if len(emitted) != 0 {
				t.Errorf("emitted %d events, want none", len(emitted))
			}
		})
	}

	t.Run("unsupported environment body", func(t *testing.T) {
		w := post(NewMux(testEnv(nil)), "/v1/fingerprint", `{"signals":{}}`, nil)
		var resp map[string]string
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp["error"] != "UNSUPPORTED_ENVIRONMENT" {
			t.Errorf("error = %q", resp["error"])
		}
	})

	t.Run("dnt response", func(t *testing.T) {
		w := post(NewMux(testEnv(nil)), "/v1/fingerprint", desktopPayload, map[string]string{"DNT": "1"})
		var resp map[string]string
		_ = json.NewDecoder(w.Body).Decode(&resp)
		if resp["status"] != "dnt" {
			t.Errorf("status = %q, want dnt", resp["status"])
		}
	})

	t.Run("signed post is accepted", func(t *testing.T) {
		env := testEnv(nil)
		env.HMACAuth = NewHMACAuth("secret", "", true, false)
		req := httptest.NewRequest(http.MethodPost, "/v1/fingerprint", bytes.NewReader([]byte(desktopPayload)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HMACHeader, sign(t, env.HMACAuth, req, []byte(desktopPayload)))
		w := httptest.NewRecorder()

		NewMux(env).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, body %s", w.Code, w.Body.String())
		}
	})
}

func TestSignals(t *testing.T) {
	var emitted []event.Event
	w := post(NewMux(testEnv(&emitted)), "/v1/signals", desktopPayload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", w.Code, w.Body.String())
	}

	var set map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&set); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := set["fingerprint"]; ok {
		t.Error("signals endpoint should not digest")
	}
	if string(set["platform"]) != `"Win32"` {
		t.Errorf("platform = %s", set["platform"])
	}
	if string(set["battery"]) != `{"error":"unavailable"}` {
		t.Errorf("unreported signal = %s, want unavailable marker", set["battery"])
	}
	if _, ok := set["acceptLanguage"]; !ok {
		t.Error("server-derived signals should be merged in")
	}
	if _, ok := set["custom"]; !ok {
		t.Error("custom data should be merged in")
	}

	if len(emitted) != 1 || emitted[0].Type != event.TypeSignals {
		t.Errorf("emitted = %+v, want one signals event", emitted)
	}
}

func TestOptions(t *testing.T) {
	env := Env{Cfg: config.Config{
		TimeoutMS:     250,
		AllowUnstable: true,
		Suspicion:     true,
		StableOnly:    true,
		Exclude:       []string{"audio", "battery"},
	}}

	opts := env.Options()
	if opts.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v", opts.Timeout)
	}
	if !opts.AllowUnstableData || !opts.IncludeSuspicionAnalysis || !opts.StableOnly || opts.Sequential {
		t.Errorf("flags not mapped: %+v", opts)
	}
	if len(opts.Exclude) != 2 || opts.Exclude[0] != signals.Audio || opts.Exclude[1] != signals.Battery {
		t.Errorf("Exclude = %v", opts.Exclude)
	}
}
