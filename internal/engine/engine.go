// Package engine wires the node registry, layout, connections, collapse
// sequencing and history archive behind a single facade. The command surface
// talks to exactly this: Spawn, CollapseAll, CancelBatch, History, and the
// event hub subscription.
package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nodefold/nodefold/internal/connection"
	"github.com/nodefold/nodefold/internal/history"
	"github.com/nodefold/nodefold/internal/layout"
	"github.com/nodefold/nodefold/internal/logging"
	"github.com/nodefold/nodefold/internal/registry"
	"github.com/nodefold/nodefold/internal/streaming"
	"github.com/nodefold/nodefold/pkg/schema"
)

const (
	// DefaultStagger is the fixed delay between successive collapses within
	// a batch. The staggered rhythm is a pacing decision, not incidental.
	DefaultStagger = 120 * time.Millisecond

	// DefaultAnimDuration is how long a node's terminal animation plays
	// between collapsing and archived.
	DefaultAnimDuration = 450 * time.Millisecond
)

// Config controls engine timing and layout.
type Config struct {
	Stagger      time.Duration
	AnimDuration time.Duration
	Layout       layout.Config
}

// Deps holds the engine's injected collaborators.
type Deps struct {
	Hub     streaming.EventHub
	Journal history.Sink // optional persistent sink for archived entries
	Logger  *slog.Logger
	Clock   clock.Clock // nil means wall clock
}

// Engine owns all engine state. Every operation, including timer callbacks,
// runs under one mutex: the model is single-logical-threaded with timers as
// the only suspension points.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	clk    clock.Clock
	reg    *registry.Registry
	lay    *layout.Engine
	conns  *connection.Manager
	arch   *history.Archive
	fsm    *NodeFSM
	hub    streaming.EventHub
	logger *slog.Logger

	// collapse sequencing state; see sequencer.go
	gen      uint64
	claimed  map[string]string // node id -> batch id
	batches  map[string]*batchState
	timers   map[uint64]*clock.Timer
	timerSeq uint64

	lastActivity time.Time
}

// New constructs an Engine. Hub may be nil when no subscriber exists.
func New(cfg Config, deps Deps) *Engine {
	if cfg.Stagger <= 0 {
		cfg.Stagger = DefaultStagger
	}
	if cfg.AnimDuration <= 0 {
		cfg.AnimDuration = DefaultAnimDuration
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	hub := deps.Hub
	if hub == nil {
		hub = streaming.NewMemoryHub()
	}

	return &Engine{
		cfg:          cfg,
		clk:          clk,
		reg:          registry.New(logger),
		lay:          layout.New(cfg.Layout),
		conns:        connection.New(logger),
		arch:         history.New(deps.Journal, logger),
		fsm:          NewNodeFSM(),
		hub:          hub,
		logger:       logger,
		claimed:      make(map[string]string),
		batches:      make(map[string]*batchState),
		timers:       make(map[uint64]*clock.Timer),
		lastActivity: clk.Now(),
	}
}

// Hub returns the engine's event hub for subscriptions.
func (e *Engine) Hub() streaming.EventHub {
	return e.hub
}

// Spawn creates a node, links it to its parent when one is live, and
// relayouts the flow. It never fails: a dangling parent is cleared and the
// node spawns as a root.
func (e *Engine) Spawn(ctx context.Context, kind schema.NodeKind, label, parentID string) schema.Node {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clk.Now()
	node := e.reg.Spawn(kind, label, parentID, now)
	e.lastActivity = now

	if node.ParentID != "" {
		e.conns.Connect(node.ParentID, node.ID, e.reg.AllLive())
	}
	e.relayoutLocked(ctx)

	ctx = logging.WithNodeID(ctx, node.ID)
	logging.LogWith(ctx, e.logger).Debug("node spawned",
		slog.String("kind", string(kind)),
		slog.String("label", label),
	)
	e.publish(ctx, streaming.StreamEvent{
		NodeID:    node.ID,
		EventType: schema.EventNodeSpawned,
		Payload:   *node,
	})

	return *node
}

// LiveNodes returns value copies of the live nodes in spawn order.
func (e *Engine) LiveNodes() []schema.Node {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := e.reg.AllLive()
	out := make([]schema.Node, len(live))
	for i, n := range live {
		out[i] = *n
	}
	return out
}

// Connections returns the current connection set.
func (e *Engine) Connections() []schema.Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns.All()
}

// History returns every archived entry in completion order.
func (e *Engine) History() []schema.HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arch.All()
}

// Stats is a snapshot of engine counters, used by auto-collapse triggers
// and status surfaces.
type Stats struct {
	Live        int     `json:"live"`
	Collapsing  int     `json:"collapsing"`
	Archived    int     `json:"archived"`
	IdleSeconds float64 `json:"idle_seconds"`
}

// Snapshot returns current engine stats.
func (e *Engine) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	collapsing := 0
	for _, n := range e.reg.AllLive() {
		if n.State == schema.NodeStateCollapsing {
			collapsing++
		}
	}
	return Stats{
		Live:        e.reg.Len(),
		Collapsing:  collapsing,
		Archived:    e.arch.Len(),
		IdleSeconds: e.clk.Now().Sub(e.lastActivity).Seconds(),
	}
}

// relayoutLocked repositions all live nodes and rederives connection
// geometry. Caller holds e.mu.
func (e *Engine) relayoutLocked(ctx context.Context) {
	live := e.reg.AllLive()
	e.lay.Relayout(live)
	e.conns.RefreshAll(live)
	e.publish(ctx, streaming.StreamEvent{
		EventType: schema.EventLayoutUpdated,
		Payload:   map[string]any{"live": len(live), "connections": e.conns.Len()},
	})
}

// publish forwards an event to the hub; a hub failure is logged, never fatal.
func (e *Engine) publish(ctx context.Context, ev streaming.StreamEvent) {
	if err := e.hub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("event_type", ev.EventType),
			slog.String("error", err.Error()),
		)
	}
}
