package history

import (
	"context"
	"time"

	"github.com/loykin/pulsr/internal/process"
)

// EventType defines the kind of liveness event.
type EventType string

const (
	EventCreated EventType = "created"
	EventRenewed EventType = "renewed"
	EventRemoved EventType = "removed"
	EventExpired EventType = "expired"
)

// Event represents a liveness event to be exported to external systems.
type Event struct {
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Record     process.Status `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
