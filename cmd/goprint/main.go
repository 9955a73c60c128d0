package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shortontech/goprint/internal/event"
	"github.com/shortontech/goprint/internal/event/detection"
	httpx "github.com/shortontech/goprint/internal/http"
	"github.com/shortontech/goprint/internal/metrics"
	"github.com/shortontech/goprint/internal/sink"
	"github.com/shortontech/goprint/internal/suspicion"
	"github.com/shortontech/goprint/pkg/config"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "probe /healthz of the local instance and exit")
	testMode := flag.Bool("testmode", false, "fingerprint canned browser profiles at startup")
	flag.Parse()

	cfg := config.Load()

	if *healthcheck {
		host, port := healthcheckTarget(cfg.ServerAddr)
		if err := performHealthCheck(host, port); err != nil {
			log.Printf("healthcheck: %v", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.InitMetrics()
	metricsServer := metrics.NewServer(metrics.LoadConfig())
	if err := metricsServer.Start(ctx); err != nil {
		log.Printf("metrics: failed to start: %v", err)
	}

	sinks := initializeSinks(ctx, cfg.Outputs)
	tracker, closeTracker := initializeTracker(ctx, cfg)
	engine := initializeEngine(ctx, cfg, appMetrics)

	env := httpx.Env{
		Cfg:      cfg,
		Emit:     createEmitFunc(sinks, appMetrics),
		HMACAuth: initializeHMACAuth(cfg),
		Metrics:  appMetrics,
		Engine:   engine,
		Tracker:  tracker,
		Ready:    readiness(sinks, tracker),
	}

	srv := startHTTPServer(cfg, env)

	if *testMode || cfg.TestMode {
		go runTestMode(env)
	}

	waitForShutdown(srv, metricsServer, sinks, closeTracker)
}

// initializeSinks starts every configured output. Unknown names and sinks
// that fail to start are logged and skipped.
func initializeSinks(ctx context.Context, outputs []string) []sink.Sink {
	var sinks []sink.Sink
	for _, output := range outputs {
		var s sink.Sink
		switch strings.ToLower(strings.TrimSpace(output)) {
		case "log":
			s = sink.NewLogSink()
		case "kafka":
			s = sink.NewKafkaSinkFromEnv()
		case "postgres", "pg":
			s = sink.NewPGSinkFromEnv()
		case "sqlite":
			s = sink.NewSQLiteSinkFromEnv()
		case "amqp", "rabbitmq":
			s = sink.NewAMQPSinkFromEnv()
		default:
			log.Printf("sinks: unknown output %q, skipping", output)
			continue
		}

		if err := s.Start(ctx); err != nil {
			log.Printf("sinks: failed to start %s sink: %v", s.Name(), err)
			continue
		}
		log.Printf("sinks: %s sink started", s.Name())
		sinks = append(sinks, s)
	}
	return sinks
}

func initializeHMACAuth(cfg config.Config) *httpx.HMACAuth {
	if cfg.HMACSecret == "" {
		return nil
	}
	log.Printf("hmac: request signing enabled (required=%v)", cfg.RequireHMAC)
	return httpx.NewHMACAuth(cfg.HMACSecret, cfg.HMACPublicKey, cfg.RequireHMAC, cfg.TrustProxy)
}

// initializeTracker picks the timing backend. Redis falls back to the
// in-process tracker when it cannot be reached at startup.
func initializeTracker(ctx context.Context, cfg config.Config) (detection.TimingTracker, func()) {
	ttl := time.Duration(cfg.TimingTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	switch cfg.TimingBackend {
	case "none", "off":
		log.Printf("timing: request timing disabled")
		return nil, func() {}
	case "redis":
		rc := detection.RedisConfigFromEnv()
		if os.Getenv("REDIS_TIMING_TTL") == "" {
			rc.TTL = ttl
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		rt, err := detection.NewRedisTimingTracker(pingCtx, rc)
		if err == nil {
			log.Printf("timing: using redis at %s", rc.Addr)
			return rt, func() { _ = rt.Close() }
		}
		log.Printf("timing: %v, falling back to memory", err)
	}
	return detection.NewMemoryTimingTracker(ttl), func() {}
}

// initializeEngine loads the rule tables. A tables file that fails to load
// leaves the built-in tables active; a good one is watched for changes.
func initializeEngine(ctx context.Context, cfg config.Config, m *metrics.Metrics) *suspicion.Engine {
	engine := suspicion.NewEngine(suspicion.DefaultTables())
	if cfg.RulesPath == "" {
		return engine
	}

	tables, err := suspicion.LoadTables(cfg.RulesPath)
	if err != nil {
		log.Printf("rules: %v, using built-in tables", err)
		m.IncrementRulesReloads("error")
		return engine
	}
	engine.SetTables(tables)
	m.IncrementRulesReloads("ok")

	go func() {
		err := suspicion.WatchTables(ctx, cfg.RulesPath, engine, func(err error) {
			if err != nil {
				m.IncrementRulesReloads("error")
				return
			}
			m.IncrementRulesReloads("ok")
		})
		if err != nil {
			log.Printf("rules: watcher stopped: %v", err)
		}
	}()
	return engine
}

type pinger interface {
	Ping(ctx context.Context) error
}

// readiness pings every dependency that can be pinged.
func readiness(sinks []sink.Sink, tracker detection.TimingTracker) func(context.Context) error {
	var deps []pinger
	var names []string
	for _, s := range sinks {
		if p, ok := s.(pinger); ok {
			deps = append(deps, p)
			names = append(names, s.Name())
		}
	}
	if p, ok := tracker.(pinger); ok {
		deps = append(deps, p)
		names = append(names, "timing")
	}

	return func(ctx context.Context) error {
		for i, p := range deps {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("%s: %w", names[i], err)
			}
		}
		return nil
	}
}

func createEmitFunc(sinks []sink.Sink, m *metrics.Metrics) func(event.Event) {
	return func(e event.Event) {
		for _, s := range sinks {
			if err := s.Enqueue(e); err != nil {
				log.Printf("sink %s enqueue error: %v", s.Name(), err)
				if m != nil {
					m.IncrementSinkErrors(s.Name(), "enqueue")
				}
				continue
			}
			if m != nil {
				m.IncrementEventsIngested(s.Name())
			}
		}
	}
}

func startHTTPServer(cfg config.Config, env httpx.Env) *http.Server {
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           httpx.NewMux(env),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		var err error
		if cfg.EnableHTTPS && cfg.TLSCert != "" && cfg.TLSKey != "" {
			log.Printf("goprint listening on %s (https)", cfg.ServerAddr)
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			if cfg.EnableHTTPS {
				log.Printf("https: ENABLE_HTTPS set without TLS_CERT and TLS_KEY, serving plain http")
			}
			log.Printf("goprint listening on %s", cfg.ServerAddr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()
	return srv
}

// healthcheckTarget turns a listen address into something dialable.
func healthcheckTarget(addr string) (string, string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "127.0.0.1", "19890"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return host, port
}

func performHealthCheck(host, port string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if string(body) != "ok" {
		return fmt.Errorf("unexpected response: %q", body)
	}
	return nil
}

func waitForShutdown(srv *http.Server, metricsServer *metrics.Server, sinks []sink.Sink, cleanup ...func()) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("shutting down...")

	shutdown(srv, metricsServer, sinks, cleanup...)
}

// shutdown drains HTTP first so that no handler emits into a closed sink.
func shutdown(srv *http.Server, metricsServer *metrics.Server, sinks []sink.Sink, cleanup ...func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http: shutdown error: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Printf("metrics: shutdown error: %v", err)
		}
	}
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("sink %s close error: %v", s.Name(), err)
		}
	}
	for _, fn := range cleanup {
		fn()
	}
}
