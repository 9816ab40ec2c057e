// Package metrics exposes Prometheus collectors for scans and the HTTP API.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yacobolo/cssaudit/internal/events"
)

// Metrics bundles the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	RateLimitDropped   prometheus.Counter
	ScansTotal         *prometheus.CounterVec
	PagesTotal         *prometheus.CounterVec
	PageHealth         prometheus.Histogram
	ScanDurationSec    prometheus.Histogram
	Scanning           prometheus.Gauge
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cssaudit_http_requests_total",
			Help: "Total number of API requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cssaudit_http_request_duration_seconds",
			Help:    "API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cssaudit_ratelimit_dropped_total",
			Help: "Total number of requests dropped by the rate limiter.",
		}),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cssaudit_scans_total",
			Help: "Total number of scans by outcome.",
		}, []string{"outcome"}),
		PagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cssaudit_pages_total",
			Help: "Total number of pages processed by result.",
		}, []string{"result"}),
		PageHealth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cssaudit_page_health_score",
			Help:    "Distribution of page health scores.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		ScanDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cssaudit_scan_duration_seconds",
			Help:    "Duration of completed scans in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Scanning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cssaudit_scanning",
			Help: "1 while a scan is running.",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSec,
		m.RateLimitDropped,
		m.ScansTotal,
		m.PagesTotal,
		m.PageHealth,
		m.ScanDurationSec,
		m.Scanning,
	)

	return m
}

// Emit updates scan collectors from the event stream.
func (m *Metrics) Emit(e events.Event) {
	if m == nil {
		return
	}
	switch e.Type {
	case events.ScanStarted:
		m.Scanning.Set(1)
	case events.PageAnalyzed:
		m.PagesTotal.WithLabelValues("analyzed").Inc()
		if d, ok := e.Data.(events.PageAnalyzedData); ok {
			m.PageHealth.Observe(float64(d.HealthScore))
		}
	case events.PageFailed:
		result := "error"
		if d, ok := e.Data.(events.PageFailedData); ok && d.Status != "" {
			result = d.Status
		}
		m.PagesTotal.WithLabelValues(result).Inc()
	case events.ScanCompleted:
		m.Scanning.Set(0)
		m.ScansTotal.WithLabelValues("completed").Inc()
		if d, ok := e.Data.(events.ScanCompletedData); ok {
			m.ScanDurationSec.Observe(float64(d.DurationMs) / 1000)
		}
	case events.ScanFailed:
		m.Scanning.Set(0)
		m.ScansTotal.WithLabelValues("failed").Inc()
	}
}

// DroppedRequest counts a rate limited request.
func (m *Metrics) DroppedRequest() {
	if m == nil {
		return
	}
	m.RateLimitDropped.Inc()
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded.
func normalizeRoute(path string) string {
	switch {
	case path == "/ws":
		return "/ws"
	case path == "/metrics":
		return "/metrics"
	case strings.HasPrefix(path, "/api/urls/"):
		return "/api/urls/*"
	case strings.HasPrefix(path, "/api/"):
		return path
	case path == "/api":
		return "/api"
	default:
		return "static"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through the wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
