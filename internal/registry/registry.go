// Package registry owns the set of live nodes. It is the single source of
// truth for what exists right now; layout and sequencing read from it but
// identity is minted here only.
package registry

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nodefold/nodefold/pkg/schema"
)

// Registry holds the live node set in spawn order.
// Not safe for concurrent use on its own; the engine serializes access.
type Registry struct {
	nodes  map[string]*schema.Node
	order  []string
	seq    int64
	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		nodes:  make(map[string]*schema.Node),
		logger: logger,
	}
}

// Spawn constructs a node with a freshly minted id and registers it.
// The node passes through spawning and is promoted to active immediately.
// A parentID that does not resolve to a live node is cleared rather than
// rejected; rapid spawn races against collapse are tolerated by policy.
func (r *Registry) Spawn(kind schema.NodeKind, label, parentID string, now time.Time) *schema.Node {
	if parentID != "" {
		if _, ok := r.nodes[parentID]; !ok {
			r.logger.Debug("dangling parent cleared at spawn",
				slog.String("parent_id", parentID),
				slog.String("label", label),
			)
			parentID = ""
		}
	}

	r.seq++
	node := &schema.Node{
		ID:        uuid.New().String(),
		Kind:      kind,
		Label:     label,
		ParentID:  parentID,
		State:     schema.NodeStateSpawning,
		Seq:       r.seq,
		SpawnedAt: now,
	}
	node.State = schema.NodeStateActive

	r.nodes[node.ID] = node
	r.order = append(r.order, node.ID)
	return node
}

// Get returns the live node with the given id, or nil if it is not live.
func (r *Registry) Get(id string) *schema.Node {
	return r.nodes[id]
}

// Remove drops a node from the live set. Removing an id that is already
// absent is a no-op so the sequencer's cleanup stays idempotent.
func (r *Registry) Remove(id string) {
	if _, ok := r.nodes[id]; !ok {
		return
	}
	delete(r.nodes, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// AllLive returns the live nodes in spawn order. The returned slice is a
// fresh copy; the pointed-to nodes are shared.
func (r *Registry) AllLive() []*schema.Node {
	out := make([]*schema.Node, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.nodes[id])
	}
	return out
}

// Len returns the number of live nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}
