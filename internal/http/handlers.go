package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shortontech/goprint/internal/collect"
	"github.com/shortontech/goprint/internal/event"
	"github.com/shortontech/goprint/internal/event/detection"
	"github.com/shortontech/goprint/internal/fault"
	"github.com/shortontech/goprint/internal/fingerprint"
	"github.com/shortontech/goprint/internal/metrics"
	"github.com/shortontech/goprint/internal/signals"
	"github.com/shortontech/goprint/internal/suspicion"
	cfg "github.com/shortontech/goprint/pkg/config"
)

type Env struct {
	Cfg      cfg.Config
	Emit     func(event.Event) // injected sink fan-out
	HMACAuth *HMACAuth
	Metrics  *metrics.Metrics
	Engine   *suspicion.Engine
	Tracker  detection.TimingTracker
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := e.Ready(ctx); err != nil {
			log.Printf("readyz: %v", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (e Env) HMACScript(w http.ResponseWriter, r *http.Request) {
	if e.HMACAuth == nil {
		http.Error(w, "HMAC authentication not configured", http.StatusNotFound)
		return
	}
	script := e.HMACAuth.GenerateClientScript(r)
	if script == "" {
		http.Error(w, "HMAC client script not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	// the embedded key is bound to the caller's address
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(script))
}

func (e Env) HMACPublicKey(w http.ResponseWriter, r *http.Request) {
	if e.HMACAuth == nil {
		http.Error(w, "HMAC authentication not configured", http.StatusNotFound)
		return
	}
	publicKey := e.HMACAuth.GetPublicKeyBase64()
	if publicKey == "" {
		http.Error(w, "HMAC public key not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]string{
		"public_key": publicKey,
		"algorithm":  "HMAC-SHA256",
		"header":     HMACHeader,
	})
}

// Sources lists every source a post is fingerprinted with, in
// serialization order.
func (e Env) Sources(w http.ResponseWriter, r *http.Request) {
	agg, err := fingerprint.New(e.sources(&collect.Payload{}, collect.FromRequest(r, nil, e.requestConfig())))
	if err != nil {
		log.Printf("sources: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	type entry struct {
		Name signals.Name `json:"name"`
		signals.Metadata
	}
	names := agg.SourceNames()
	out := make([]entry, 0, len(names))
	for _, name := range names {
		meta, _ := agg.Registry().Lookup(name)
		out = append(out, entry{Name: name, Metadata: meta})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

// POST /v1/fingerprint: the full pipeline, answered with the result and
// fanned out to the sinks.
func (e Env) Fingerprint(w http.ResponseWriter, r *http.Request) {
	p, body, ok := e.readPayload(w, r)
	if !ok {
		return
	}
	req := collect.FromRequest(r, body, e.requestConfig())
	agg, err := e.aggregator(p, req)
	if err != nil {
		log.Printf("fingerprint: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	res, err := agg.Generate(r.Context(), p.Apply(e.Options()))
	if err != nil {
		writeGenerateError(w, err)
		return
	}

	evt := event.FromResult(res)
	event.EnrichServerFields(r, evt, event.Server{IPHash: req.IPHash, Analysis: req.Analysis})
	if e.Emit != nil {
		e.Emit(*evt)
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/signals: collection only, no digest and no suspicion analysis.
func (e Env) Signals(w http.ResponseWriter, r *http.Request) {
	p, body, ok := e.readPayload(w, r)
	if !ok {
		return
	}
	req := collect.FromRequest(r, body, e.requestConfig())
	agg, err := e.aggregator(p, req)
	if err != nil {
		log.Printf("signals: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	set, err := agg.Signals(r.Context(), p.Apply(e.Options()))
	if err != nil {
		writeGenerateError(w, err)
		return
	}

	evt := event.FromSignals(set)
	event.EnrichServerFields(r, evt, event.Server{IPHash: req.IPHash, Analysis: req.Analysis})
	if e.Emit != nil {
		e.Emit(*evt)
	}
	writeJSON(w, http.StatusOK, set)
}

// Options are the server-wide defaults a collector post starts from.
func (e Env) Options() fingerprint.Options {
	opts := fingerprint.Options{
		AllowUnstableData:        e.Cfg.AllowUnstable,
		IncludeSuspicionAnalysis: e.Cfg.Suspicion,
		Timeout:                  time.Duration(e.Cfg.TimeoutMS) * time.Millisecond,
		Sequential:               e.Cfg.Sequential,
		StableOnly:               e.Cfg.StableOnly,
	}
	for _, name := range e.Cfg.Exclude {
		opts.Exclude = append(opts.Exclude, signals.Name(name))
	}
	return opts
}

func (e Env) requestConfig() collect.RequestConfig {
	return collect.RequestConfig{
		TrustProxy: e.Cfg.TrustProxy,
		IPSecret:   e.Cfg.IPHashSecret,
		Tracker:    e.Tracker,
	}
}

func (e Env) sources(p *collect.Payload, req *collect.Request) []signals.Source {
	return append(p.Sources(), req.Sources()...)
}

func (e Env) aggregator(p *collect.Payload, req *collect.Request) (*fingerprint.Aggregator, error) {
	opts := []fingerprint.Option{fingerprint.WithEnvironmentCheck(p.Check)}
	if e.Engine != nil {
		opts = append(opts, fingerprint.WithEngine(e.Engine))
	}
	if e.Metrics != nil {
		opts = append(opts, fingerprint.WithObserver(e.Metrics))
	}
	return fingerprint.New(e.sources(p, req), opts...)
}

// readPayload applies the checks shared by collector posts. It writes the
// error response itself and reports false when the handler should stop.
func (e Env) readPayload(w http.ResponseWriter, r *http.Request) (*collect.Payload, []byte, bool) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") && !strings.Contains(ct, "text/plain") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return nil, nil, false
	}
	if e.Cfg.DNTRespect && event.DoNotTrack(r) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "dnt"})
		return nil, nil, false
	}

	defer r.Body.Close()
	limit := e.Cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "failed to read body", http.StatusBadRequest)
		}
		return nil, nil, false
	}

	if e.HMACAuth != nil && !e.HMACAuth.VerifyHMAC(r, body) {
		http.Error(w, "invalid or missing HMAC signature", http.StatusUnauthorized)
		return nil, nil, false
	}

	p, err := collect.ParsePayload(body)
	if err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return nil, nil, false
	}
	return p, body, true
}

func writeGenerateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fault.ErrUnsupportedEnvironment):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   string(fault.CodeUnsupportedEnvironment),
			"message": err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		log.Printf("fingerprint: generate failed: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: failed to write response: %v", err)
	}
}
