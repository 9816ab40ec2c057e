// Package events carries scan lifecycle events to observers: the live
// WebSocket channel, a NATS stream, or test recorders.
package events

import (
	"sync"
	"time"

	"github.com/yacobolo/cssaudit/internal/audit"
)

// Type names an event on the wire.
type Type string

// Event types
const (
	ScanStarted       Type = "scan:started"
	ScanProgress      Type = "scan:progress"
	PageAnalyzed      Type = "page:analyzed"
	PageFailed        Type = "page:error"
	ScanCompleted     Type = "scan:completed"
	ScanFailed        Type = "scan:error"
	URLExcluded       Type = "url:excluded"
	URLsDeleted       Type = "urls:deleted"
	MonitoringStarted Type = "monitoring:started"
	MonitoringStopped Type = "monitoring:stopped"
	// State carries a full snapshot, sent to live clients when they connect.
	State Type = "state"
)

// Event is one notification.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(t Type, data any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Data: data}
}

// ScanStartedData is the payload of scan:started.
type ScanStartedData struct {
	Kind string   `json:"kind"`
	URLs []string `json:"urls,omitempty"`
}

// ProgressData is the payload of scan:progress.
type ProgressData struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	CurrentURL string `json:"currentUrl"`
}

// PageAnalyzedData is the payload of page:analyzed.
type PageAnalyzedData struct {
	URL         string       `json:"url"`
	ErrorCount  int          `json:"errorCount"`
	HealthScore int          `json:"healthScore"`
	Status      audit.Health `json:"status"`
}

// PageFailedData is the payload of page:error.
type PageFailedData struct {
	URL     string `json:"url"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ScanCompletedData is the payload of scan:completed.
type ScanCompletedData struct {
	URLsScanned int   `json:"urlsScanned"`
	TotalErrors int   `json:"totalErrors"`
	DurationMs  int64 `json:"durationMs"`
}

// ScanFailedData is the payload of scan:error.
type ScanFailedData struct {
	Message string `json:"message"`
}

// URLExcludedData is the payload of url:excluded.
type URLExcludedData struct {
	URL      string `json:"url"`
	Excluded bool   `json:"excluded"`
}

// URLsDeletedData is the payload of urls:deleted.
type URLsDeletedData struct {
	URLs []string `json:"urls"`
}

// MonitoringData is the payload of monitoring:started and monitoring:stopped.
type MonitoringData struct {
	IntervalMinutes int `json:"intervalMinutes,omitempty"`
}

// Emitter receives events. Implementations must not block for long; the
// scan loop emits synchronously to keep event order.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(e Event) { f(e) }

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit forwards e to every non-nil emitter.
func (m Multi) Emit(e Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(e)
		}
	}
}

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
