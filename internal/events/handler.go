package events

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// SnapshotFunc builds the full state a client receives when it connects.
type SnapshotFunc func(ctx context.Context) (any, error)

// Handler upgrades requests to WebSocket connections served by a Hub.
type Handler struct {
	hub            *Hub
	snapshot       SnapshotFunc
	allowedOrigins map[string]struct{}
	upgrader       websocket.Upgrader
	logger         *slog.Logger
}

// NewHandler creates a handler. An empty allowedOrigins list accepts
// same-origin requests only; "*" accepts any origin.
func NewHandler(hub *Hub, snapshot SnapshotFunc, allowedOrigins []string, logger *slog.Logger) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	h := &Handler{
		hub:            hub,
		snapshot:       snapshot,
		allowedOrigins: origins,
		logger:         logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	if _, ok := h.allowedOrigins["*"]; ok {
		return true
	}
	_, ok := h.allowedOrigins[parsed.Scheme+"://"+parsed.Host]
	return ok
}

// ServeHTTP upgrades the connection, queues the state snapshot and starts
// the client pumps.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn, h.logger)
	if h.snapshot != nil {
		state, err := h.snapshot(r.Context())
		if err != nil {
			h.logger.Error("building state snapshot", "error", err)
		} else {
			client.send <- New(State, state)
		}
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
