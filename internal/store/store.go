package store

import (
	"context"

	"github.com/nodefold/nodefold/pkg/schema"
)

// Store defines the persistence contract for the history journal and the
// engine event log. All implementations must be safe for concurrent use.
type Store interface {
	// History journal (append-only)
	AppendHistory(ctx context.Context, entry schema.HistoryEntry) error
	ListHistory(ctx context.Context, filter HistoryFilter) ([]schema.HistoryEntry, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	Migrate(ctx context.Context) error
	Close() error
}

// HistoryFilter narrows ListHistory results.
type HistoryFilter struct {
	Kind  schema.NodeKind
	Limit int
}

// EventFilter narrows ListEvents results.
type EventFilter struct {
	BatchID   string
	EventType string
	Since     int64 // exclusive lower bound on sequence
	Limit     int
}
