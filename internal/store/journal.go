package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nodefold/nodefold/internal/streaming"
)

// Journal drains the engine's event hub into the persistent event log.
// It is an observer: the engine never blocks on it, and a write failure
// is logged and dropped rather than surfaced.
type Journal struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// NewJournal creates a Journal writing to the given store.
func NewJournal(s Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: s, logger: logger}
}

// Start subscribes to the hub and begins persisting events.
func (j *Journal) Start(ctx context.Context, hub streaming.EventHub) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done != nil {
		return fmt.Errorf("journal already started")
	}

	ch, cancelSub, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return fmt.Errorf("journal subscribe: %w", err)
	}

	jCtx, cancel := context.WithCancel(ctx)
	j.cancel = func() {
		cancel()
		cancelSub()
	}
	j.done = make(chan struct{})

	go j.loop(jCtx, ch)
	j.logger.Info("event journal started")
	return nil
}

func (j *Journal) loop(ctx context.Context, ch <-chan streaming.StreamEvent) {
	defer close(j.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			j.persist(ctx, ev)
		}
	}
}

func (j *Journal) persist(ctx context.Context, ev streaming.StreamEvent) {
	var payload json.RawMessage
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			j.logger.Warn("journal payload marshal failed",
				slog.String("event_type", ev.EventType),
				slog.String("error", err.Error()),
			)
		} else {
			payload = data
		}
	}

	event := &Event{
		BatchID: ev.BatchID,
		NodeID:  ev.NodeID,
		Type:    ev.EventType,
		Payload: payload,
	}
	if err := j.store.AppendEvent(ctx, event); err != nil {
		j.logger.Warn("journal append failed",
			slog.String("event_type", ev.EventType),
			slog.String("error", err.Error()),
		)
	}
}

// Stop halts the journal and waits for the drain loop to exit.
func (j *Journal) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.cancel = nil
	j.done = nil
	j.logger.Info("event journal stopped")
}
