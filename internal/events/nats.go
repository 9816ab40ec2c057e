package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes every event to a JetStream subject derived from
// its type, e.g. "cssaudit.scan.completed".
type NATSPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to natsURL and makes sure a stream named stream
// captures prefix.>.
func NewNATSPublisher(natsURL, prefix, stream string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("cssaudit"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if stream != "" {
		if _, err := js.StreamInfo(stream); errors.Is(err, nats.ErrStreamNotFound) {
			_, err = js.AddStream(&nats.StreamConfig{
				Name:     stream,
				Subjects: []string{prefix + ".>"},
				MaxAge:   7 * 24 * time.Hour,
			})
			if err != nil {
				nc.Close()
				return nil, fmt.Errorf("failed to create stream %s: %w", stream, err)
			}
		} else if err != nil {
			logger.Warn("nats stream lookup failed", "stream", stream, "error", err)
		}
	}

	logger.Info("connected to nats", "url", natsURL, "prefix", prefix)
	return &NATSPublisher{nc: nc, js: js, prefix: prefix, logger: logger}, nil
}

// Subject maps an event type to its subject.
func Subject(prefix string, t Type) string {
	return prefix + "." + strings.ReplaceAll(string(t), ":", ".")
}

// Emit publishes e asynchronously. Failures are logged, never returned.
func (p *NATSPublisher) Emit(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}
	subject := Subject(p.prefix, e.Type)
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
		return
	}
	p.logger.Debug("event published", "subject", subject, "size", len(data))
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		p.logger.Warn("timed out waiting for pending nats publishes")
	}
	p.nc.Close()
	return nil
}
