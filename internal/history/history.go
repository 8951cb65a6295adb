package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType is the terminal outcome of one render attempt, or a crash recovery.
type EventType string

const (
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
	EventSkipped   EventType = "skipped"
	EventRecovered EventType = "recovered"
)

// Event describes one asset outcome for export to analytics systems.
type Event struct {
	Type       EventType     `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	AssetID    uuid.UUID     `json:"asset_id"`
	Name       string        `json:"name"`
	Category   string        `json:"category"`
	Publisher  uint64        `json:"publisher,omitempty"`
	OutputPath string        `json:"output_path,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Nullable returns nil for an empty string so drivers store NULL.
func Nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
