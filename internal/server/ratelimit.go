package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yacobolo/cssaudit/internal/metrics"
)

const (
	maxTrackedClients = 10_000
	clientIdleTimeout = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter applies a per-client request rate.
type Limiter struct {
	mu    sync.Mutex
	perIP map[string]*clientLimiter
	rps   rate.Limit
	burst int
}

// NewLimiter creates a limiter allowing rps requests per second per client
// with the given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		perIP: make(map[string]*clientLimiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			m.DroppedRequest()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	item, ok := l.perIP[ip]
	if !ok {
		item = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.perIP[ip] = item
	}
	item.lastSeen = now

	if len(l.perIP) > maxTrackedClients {
		threshold := now.Add(-clientIdleTimeout)
		for key, entry := range l.perIP {
			if entry.lastSeen.Before(threshold) {
				delete(l.perIP, key)
			}
		}
	}

	return item.limiter.Allow()
}

func clientIP(r *http.Request) string {
	if forwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
