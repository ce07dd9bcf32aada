package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/nodefold/nodefold/internal/logging"
	"github.com/nodefold/nodefold/internal/streaming"
	"github.com/nodefold/nodefold/pkg/schema"
)

// closingAnnotations is the fixed phrase set for the batch's final entry.
// The pick is keyed off the batch size so it is deterministic.
var closingAnnotations = []string{
	"all threads tied off",
	"the board clears",
	"folded into the record",
	"quiet again",
}

// batchState tracks one in-flight collapse batch.
type batchState struct {
	id        string
	total     int
	remaining int
}

// CollapseAll snapshots the live set and collapses it in LIFO spawn order,
// staggering each node by its index times the stagger interval. The snapshot
// is closed over the invocation instant: nodes spawned afterwards are not in
// the batch, and nodes already claimed by an earlier batch are excluded, so
// each node gets at most one terminal transition. Returns the batch id and
// batch size; a batch over an empty set is a no-op returning ("", 0).
func (e *Engine) CollapseAll(ctx context.Context) (string, int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var snapshot []*schema.Node
	for _, n := range e.reg.AllLive() {
		if n.State != schema.NodeStateActive {
			continue
		}
		if _, taken := e.claimed[n.ID]; taken {
			continue
		}
		snapshot = append(snapshot, n)
	}
	if len(snapshot) == 0 {
		return "", 0
	}

	// LIFO: the most recently spawned node collapses first.
	for i, j := 0, len(snapshot)-1; i < j; i, j = i+1, j-1 {
		snapshot[i], snapshot[j] = snapshot[j], snapshot[i]
	}

	batchID := uuid.New().String()
	e.batches[batchID] = &batchState{
		id:        batchID,
		total:     len(snapshot),
		remaining: len(snapshot),
	}

	ctx = logging.WithBatchID(ctx, batchID)
	logging.LogWith(ctx, e.logger).Info("collapse batch started",
		slog.Int("size", len(snapshot)),
	)
	e.publish(ctx, streaming.StreamEvent{
		BatchID:   batchID,
		EventType: schema.EventBatchStarted,
		Payload:   map[string]any{"size": len(snapshot)},
	})

	gen := e.gen
	for i, node := range snapshot {
		e.claimed[node.ID] = batchID
		nodeID := node.ID
		final := i == len(snapshot)-1
		delay := time.Duration(i) * e.cfg.Stagger
		e.schedule(delay, func() {
			e.beginCollapse(gen, batchID, nodeID, final)
		})
	}

	return batchID, len(snapshot)
}

// CancelBatch stops every pending collapse timer and returns nodes already
// mid-animation to active. Stale callbacks from before the cancel are
// invalidated by the generation bump. Returns how many nodes were restored.
func (e *Engine) CancelBatch(ctx context.Context) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.batches) == 0 {
		return 0
	}

	e.gen++
	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = make(map[uint64]*clock.Timer)
	restored := 0
	for nodeID := range e.claimed {
		node := e.reg.Get(nodeID)
		if node == nil {
			continue
		}
		if node.State == schema.NodeStateCollapsing {
			if err := e.fsm.Transition(node, schema.NodeStateActive); err != nil {
				e.logger.Warn("cancel restore failed", slog.String("error", err.Error()))
				continue
			}
			restored++
			e.publish(ctx, streaming.StreamEvent{
				NodeID:    nodeID,
				EventType: schema.EventNodeCancelled,
			})
		}
	}
	e.claimed = make(map[string]string)

	for id, b := range e.batches {
		e.publish(logging.WithBatchID(ctx, id), streaming.StreamEvent{
			BatchID:   id,
			EventType: schema.EventBatchCancelled,
			Payload:   map[string]any{"size": b.total},
		})
	}
	e.batches = make(map[string]*batchState)

	e.logger.Info("collapse cancelled", slog.Int("restored", restored))
	return restored
}

// beginCollapse fires when a node's stagger delay elapses: the node leaves
// active, a motion vector toward its parent (or the history sink) is
// published, and the terminal animation timer starts.
func (e *Engine) beginCollapse(gen uint64, batchID, nodeID string, final bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		return // batch cancelled; stale callback
	}
	batch := e.batches[batchID]
	if batch == nil {
		return
	}

	ctx := logging.WithBatchID(logging.WithNodeID(context.Background(), nodeID), batchID)

	node := e.reg.Get(nodeID)
	if node == nil || node.State != schema.NodeStateActive {
		e.releaseSlotLocked(ctx, batch, nodeID)
		return
	}

	if err := e.fsm.Transition(node, schema.NodeStateCollapsing); err != nil {
		logging.LogWith(ctx, e.logger).Warn("collapse transition failed", slog.String("error", err.Error()))
		e.releaseSlotLocked(ctx, batch, nodeID)
		return
	}

	// Motion vector toward the parent's current position; a parentless node
	// (or one whose parent was archived by an earlier batch) heads for the
	// history sink instead.
	target := e.lay.SinkPoint()
	if parent := e.reg.Get(node.ParentID); parent != nil {
		target = parent.Position
	}
	vector := schema.Point{X: target.X - node.Position.X, Y: target.Y - node.Position.Y}

	e.publish(ctx, streaming.StreamEvent{
		BatchID:   batchID,
		NodeID:    nodeID,
		EventType: schema.EventNodeCollapsing,
		Payload:   map[string]any{"target": target, "vector": vector},
	})

	e.schedule(e.cfg.AnimDuration, func() {
		e.finishCollapse(gen, batchID, nodeID, final)
	})
}

// finishCollapse fires when the terminal animation completes: archived state,
// connections released, history appended, node removed, remaining flow
// re-laid out. The batch's final entry carries the closing annotation.
func (e *Engine) finishCollapse(gen uint64, batchID, nodeID string, final bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		return
	}
	batch := e.batches[batchID]
	if batch == nil {
		return
	}

	ctx := logging.WithBatchID(logging.WithNodeID(context.Background(), nodeID), batchID)

	node := e.reg.Get(nodeID)
	if node == nil {
		e.releaseSlotLocked(ctx, batch, nodeID)
		return
	}

	if err := e.fsm.Transition(node, schema.NodeStateArchived); err != nil {
		logging.LogWith(ctx, e.logger).Warn("archive transition failed", slog.String("error", err.Error()))
		e.releaseSlotLocked(ctx, batch, nodeID)
		return
	}

	e.conns.Release(nodeID)

	annotation := ""
	if final {
		annotation = closingAnnotations[batch.total%len(closingAnnotations)]
	}
	entry := e.arch.Append(ctx, node.ID, node.Kind, node.Label, annotation, e.clk.Now())

	e.reg.Remove(nodeID)
	delete(e.claimed, nodeID)
	e.relayoutLocked(ctx)

	logging.LogWith(ctx, e.logger).Debug("node archived",
		slog.Int64("completion_order", entry.CompletionOrder),
	)
	e.publish(ctx, streaming.StreamEvent{
		BatchID:   batchID,
		NodeID:    nodeID,
		EventType: schema.EventNodeArchived,
		Payload:   entry,
	})

	batch.remaining--
	if batch.remaining == 0 {
		delete(e.batches, batchID)
		logging.LogWith(ctx, e.logger).Info("collapse batch completed",
			slog.Int("size", batch.total),
		)
		e.publish(ctx, streaming.StreamEvent{
			BatchID:   batchID,
			EventType: schema.EventBatchCompleted,
			Payload:   map[string]any{"size": batch.total, "final_entry": entry},
		})
	}
}

// releaseSlotLocked closes a batch slot for a node that could not complete
// its collapse (vanished or in an unexpected state). Caller holds e.mu.
func (e *Engine) releaseSlotLocked(ctx context.Context, batch *batchState, nodeID string) {
	delete(e.claimed, nodeID)
	batch.remaining--
	if batch.remaining == 0 {
		delete(e.batches, batch.id)
		e.publish(ctx, streaming.StreamEvent{
			BatchID:   batch.id,
			EventType: schema.EventBatchCompleted,
			Payload:   map[string]any{"size": batch.total},
		})
	}
}

// schedule registers a timer callback through the injected clock so mock
// clocks can drive the sequence deterministically. Caller holds e.mu.
func (e *Engine) schedule(d time.Duration, fn func()) {
	e.timerSeq++
	id := e.timerSeq
	t := e.clk.AfterFunc(d, func() {
		fn()
		e.mu.Lock()
		delete(e.timers, id)
		e.mu.Unlock()
	})
	e.timers[id] = t
}
