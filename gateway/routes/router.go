package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakingrewards/core/events"
	"stakingrewards/gateway/middleware"
	"stakingrewards/native/staking"
)

const requestBodyLimit = 1 << 16 // 64 KiB

type Config struct {
	Engine        *staking.Engine
	Journal       *events.Journal
	Logger        *slog.Logger
	ServiceName   string
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	// MetricsHandler defaults to the process-wide prometheus registry.
	MetricsHandler http.Handler
	// RequestTimeout bounds non-streaming handlers. Zero disables it.
	RequestTimeout time.Duration
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("routes: staking engine required")
	}
	if cfg.Journal == nil {
		return nil, fmt.Errorf("routes: events journal required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	service := cfg.ServiceName
	if service == "" {
		service = "stakingd"
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	sr := &stakingRoutes{engine: cfg.Engine, journal: cfg.Journal, logger: logger}
	lr := &ledgerRoutes{engine: cfg.Engine}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metricsHandler)

	group := func(module string, mount func(chi.Router)) func(chi.Router) {
		return func(g chi.Router) {
			if cfg.RateLimiter != nil {
				g.Use(cfg.RateLimiter.Middleware(module))
			}
			if cfg.Observability != nil {
				g.Use(cfg.Observability.Middleware(module))
			}
			mount(g)
		}
	}

	r.Route("/v1/staking", group("staking", func(g chi.Router) {
		// The stream is long-lived and must not inherit the request timeout.
		g.Get("/events/ws", sr.streamEvents)
		g.Group(func(g chi.Router) {
			if cfg.RequestTimeout > 0 {
				g.Use(timeout(cfg.RequestTimeout))
			}
			sr.mount(g)
		})
	}))
	r.Route("/v1/ledger/{asset}", group("ledger", func(g chi.Router) {
		if cfg.RequestTimeout > 0 {
			g.Use(timeout(cfg.RequestTimeout))
		}
		lr.mount(g)
	}))

	return otelhttp.NewHandler(r, service), nil
}

func timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out","code":"Timeout"}`)
	}
}
