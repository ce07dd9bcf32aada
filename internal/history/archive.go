// Package history is the append-only archive of completed nodes.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nodefold/nodefold/pkg/schema"
)

// Sink receives archived entries for persistence beyond process lifetime.
// The archive itself stays authoritative; a failing sink is logged and
// never surfaces to the caller.
type Sink interface {
	AppendHistory(ctx context.Context, entry schema.HistoryEntry) error
}

// Archive is the in-memory append-only history log. Entries are immutable
// once appended and completion order is monotonic across batches.
type Archive struct {
	entries []schema.HistoryEntry
	next    int64
	sink    Sink
	logger  *slog.Logger
}

// New creates an empty Archive. sink may be nil.
func New(sink Sink, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{sink: sink, logger: logger}
}

// Append records a completed node and returns the immutable entry. The
// archive assigns the completion order; callers never pick their own.
func (a *Archive) Append(ctx context.Context, originalID string, kind schema.NodeKind, label, annotation string, now time.Time) schema.HistoryEntry {
	entry := schema.HistoryEntry{
		ID:              uuid.New().String(),
		OriginalID:      originalID,
		Kind:            kind,
		Label:           label,
		CompletionOrder: a.next,
		Annotation:      annotation,
		ArchivedAt:      now,
	}
	a.next++
	a.entries = append(a.entries, entry)

	if a.sink != nil {
		if err := a.sink.AppendHistory(ctx, entry); err != nil {
			a.logger.Warn("history sink append failed",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return entry
}

// All returns every entry in append order, most-recent-last.
func (a *Archive) All() []schema.HistoryEntry {
	out := make([]schema.HistoryEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len returns the number of archived entries.
func (a *Archive) Len() int {
	return len(a.entries)
}
