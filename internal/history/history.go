package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart  EventType = "start"
	EventReload EventType = "reload"
	EventExit   EventType = "exit"
)

// Record is one supervisor lifecycle event persisted for later inspection.
type Record struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Script     string    `json:"script"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for lifecycle records.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, r Record) error
}

// Querier reads back persisted records, newest first.
type Querier interface {
	List(ctx context.Context, limit int) ([]Record, error)
}
