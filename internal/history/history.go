// Package history records lifecycle transitions to external stores for
// audit and statistics. Recording is best-effort: a failing sink never
// fails the lifecycle operation that produced the event.
package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType identifies the lifecycle transition an event describes.
type EventType string

const (
	EventInit  EventType = "init"
	EventStart EventType = "start"
	EventStop  EventType = "stop"
	EventKill  EventType = "kill"
	EventClean EventType = "clean"
)

// Event is one lifecycle transition of one server instance.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Port       int       `json:"port"`
	DataDir    string    `json:"data_dir"`
	PID        int       `json:"pid"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for lifecycle events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Record fans an event out to sinks, logging and swallowing sink errors.
func Record(ctx context.Context, sinks []Sink, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil {
			slog.Warn("history sink send failed", "type", e.Type, "error", err)
		}
	}
}
