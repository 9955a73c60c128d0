package httpx

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shortontech/goprint/internal/metrics"
)

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestRequestLogger(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusAccepted, http.StatusInternalServerError} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			w := httptest.NewRecorder()
			RequestLogger(statusHandler(code)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/fingerprint", nil))
			if w.Code != code {
				t.Errorf("status code = %d, want %d", w.Code, code)
			}
		})
	}

	t.Run("with request id", func(t *testing.T) {
		called := false
		h := middleware.RequestID(RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = middleware.GetReqID(r.Context()) != ""
		})))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if !called {
			t.Error("request id should reach the wrapped handler")
		}
	})
}

func TestCors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		wantCode   int
		wantCalled bool
	}{
		{"get", http.MethodGet, http.StatusOK, true},
		{"post", http.MethodPost, http.StatusCreated, true},
		{"preflight", http.MethodOptions, http.StatusNoContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(tt.wantCode)
			}))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, "/v1/fingerprint", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			if called != tt.wantCalled {
				t.Errorf("next called = %v, want %v", called, tt.wantCalled)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
			}
			allowHeaders := w.Header().Get("Access-Control-Allow-Headers")
			for _, h := range []string{"Content-Type", "DNT", "Sec-GPC", HMACHeader} {
				if !strings.Contains(allowHeaders, h) {
					t.Errorf("Access-Control-Allow-Headers should contain %s, got %q", h, allowHeaders)
				}
			}
			allowMethods := w.Header().Get("Access-Control-Allow-Methods")
			for _, m := range []string{"GET", "POST", "OPTIONS"} {
				if !strings.Contains(allowMethods, m) {
					t.Errorf("Access-Control-Allow-Methods should contain %s, got %q", m, allowMethods)
				}
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
		rw.WriteHeader(http.StatusUnprocessableEntity)

		if rw.statusCode != http.StatusUnprocessableEntity {
			t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusUnprocessableEntity)
		}
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("recorder code = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("defaults to 200 on bare write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
		_, _ = rw.Write([]byte("ok"))
		rw.Header().Set("X-Test", "value")

		if rw.statusCode != http.StatusOK {
			t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusOK)
		}
		if got := rec.Body.String(); got != "ok" {
			t.Errorf("body = %q, want ok", got)
		}
	})
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.InitMetrics()

	t.Run("nil metrics passes through", func(t *testing.T) {
		next := statusHandler(http.StatusOK)
		w := httptest.NewRecorder()
		MetricsMiddleware(nil)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("outside a router counts as unmatched", func(t *testing.T) {
		for _, code := range []int{http.StatusOK, http.StatusBadRequest, http.StatusRequestEntityTooLarge} {
			c := m.HTTPRequests.WithLabelValues("unmatched", http.MethodPost, strconv.Itoa(code))
			before := testutil.ToFloat64(c)

			w := httptest.NewRecorder()
			MetricsMiddleware(m)(statusHandler(code)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))

			if w.Code != code {
				t.Errorf("status code = %d, want %d", w.Code, code)
			}
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("counter for %d grew by %v, want 1", code, got)
			}
		}
	})

	t.Run("does not modify response", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Custom-Header", "custom-value")
			_, _ = w.Write([]byte("body"))
		})
		w := httptest.NewRecorder()
		MetricsMiddleware(m)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if got := w.Header().Get("X-Custom-Header"); got != "custom-value" {
			t.Errorf("X-Custom-Header = %q, want custom-value", got)
		}
		if got := w.Body.String(); got != "body" {
			t.Errorf("body = %q, want body", got)
		}
	})
}

func TestRouteLabel(t *testing.T) {
	m := metrics.InitMetrics()

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := m.HTTPRequests.WithLabelValues("/items/{id}", http.MethodGet, "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("route counter grew by %v, want 3", got)
	}

	t.Run("outside a chi router", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if got := routeLabel(req); got != "unmatched" {
			t.Errorf("routeLabel = %q, want unmatched", got)
		}
	})
}
