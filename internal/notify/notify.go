// Package notify publishes job lifecycle events so other systems can react
// to reels as they finish without polling the HTTP API.
package notify

import (
	"context"
	"time"
)

// Event types.
const (
	EventQueued    = "job.queued"
	EventStarted   = "job.started"
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
)

// Event describes one state change of a video job.
type Event struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	RequestID string    `json:"request_id,omitempty"`
	Status    string    `json:"status"`
	URL       string    `json:"url,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier delivers events. Delivery is best effort: callers log errors and
// carry on.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }
