// Package server exposes the scan coordinator over HTTP: a JSON API, the
// live WebSocket channel, Prometheus metrics and an embedded dashboard.
package server

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/metrics"
	"github.com/yacobolo/cssaudit/internal/scan"
)

//go:embed static
var staticFiles embed.FS

// RateLimit bounds how often a client may start scans.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Config wires a Server.
type Config struct {
	Coordinator    *scan.Coordinator
	Hub            *events.Hub
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RateLimit      RateLimit
	Logger         *slog.Logger
}

// Server routes HTTP requests.
type Server struct {
	coord   *scan.Coordinator
	hub     *events.Hub
	metrics *metrics.Metrics
	gather  prometheus.Gatherer
	origins []string
	limiter *Limiter
	logger  *slog.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rl := cfg.RateLimit
	if rl.RPS <= 0 {
		rl.RPS = 1
	}
	if rl.Burst <= 0 {
		rl.Burst = 5
	}
	return &Server{
		coord:   cfg.Coordinator,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		gather:  cfg.Gatherer,
		origins: cfg.AllowedOrigins,
		limiter: NewLimiter(rl.RPS, rl.Burst),
		logger:  logger,
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("failed to initialize embedded static assets: " + err.Error())
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, staticFS, "index.html")
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gather != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}
	if s.hub != nil {
		mux.Handle("GET /ws", events.NewHandler(s.hub, s.snapshot, s.origins, s.logger))
	}

	mux.HandleFunc("GET /api/urls", s.listURLs)
	mux.HandleFunc("DELETE /api/urls", s.deleteURL)
	mux.HandleFunc("POST /api/urls/delete", s.deleteURLs)
	mux.HandleFunc("POST /api/urls/exclude", s.setExcluded)
	mux.HandleFunc("GET /api/stats", s.stats)
	mux.HandleFunc("GET /api/config", s.getConfig)
	mux.HandleFunc("PUT /api/config", s.updateConfig)
	mux.HandleFunc("GET /api/history", s.history)
	mux.Handle("POST /api/scan", s.limiter.Middleware(s.metrics, http.HandlerFunc(s.startScan)))
	mux.Handle("POST /api/scan/urls", s.limiter.Middleware(s.metrics, http.HandlerFunc(s.startScanURLs)))
	mux.HandleFunc("GET /api/scan/status", s.scanStatus)
	mux.HandleFunc("GET /api/scan/results", s.scanResults)
	mux.HandleFunc("POST /api/monitoring/start", s.startMonitoring)
	mux.HandleFunc("POST /api/monitoring/stop", s.stopMonitoring)

	var handler http.Handler = mux
	handler = s.metrics.Middleware(handler)
	handler = Logger(s.logger)(handler)
	handler = Recovery(s.logger)(handler)
	handler = WithRequestID(handler)
	return handler
}

// State is the snapshot a live client receives on connect.
type State struct {
	Stats  scan.Stats  `json:"stats"`
	Status scan.Status `json:"status"`
	URLs   any         `json:"urls"`
}

func (s *Server) snapshot(ctx context.Context) (any, error) {
	stats, err := s.coord.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status, err := s.coord.Status(ctx)
	if err != nil {
		return nil, err
	}
	urls, err := s.coord.ListURLs(ctx)
	if err != nil {
		return nil, err
	}
	return State{Stats: stats, Status: status, URLs: urls}, nil
}
