package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewMux wires the public API. Collector posts live under /v1; probes and
// the signing script sit at the root.
func NewMux(e Env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(e.Metrics))
	r.Use(cors)

	r.Get("/healthz", e.Healthz)
	r.Get("/readyz", e.Readyz)

	r.Get("/hmac.js", e.HMACScript)
	r.Get("/hmac/public-key", e.HMACPublicKey)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/fingerprint", e.Fingerprint)
		r.Post("/signals", e.Signals)
		r.Get("/sources", e.Sources)
	})

	return r
}
