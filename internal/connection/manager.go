// Package connection tracks the directed parent edges between live nodes and
// keeps their derived geometry in sync with node positions.
package connection

import (
	"log/slog"
	"math"

	"github.com/nodefold/nodefold/pkg/schema"
)

// Manager owns the live connection set. Geometry is always recomputed from
// the endpoints' current positions; RefreshAll is unconditional rather than
// incremental so there is no stale cache to drift from reality.
type Manager struct {
	edges  []*schema.Connection
	logger *slog.Logger
}

// New creates an empty Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Connect registers a directed edge from parent to child. If either endpoint
// is not live the call is a logged no-op, matching the registry's
// dangling-parent policy.
func (m *Manager) Connect(fromID, toID string, live []*schema.Node) {
	from := find(fromID, live)
	to := find(toID, live)
	if from == nil || to == nil {
		m.logger.Debug("connect skipped: endpoint not live",
			slog.String("from_id", fromID),
			slog.String("to_id", toID),
		)
		return
	}
	m.edges = append(m.edges, &schema.Connection{
		FromID:   fromID,
		ToID:     toID,
		Geometry: derive(from.Position, to.Position),
	})
}

// RefreshAll rederives geometry for every edge from current node positions.
// Must run after every layout pass. An edge whose endpoint has left the live
// set is dropped; a connection never outlives its endpoints.
func (m *Manager) RefreshAll(live []*schema.Node) {
	kept := m.edges[:0]
	for _, e := range m.edges {
		from := find(e.FromID, live)
		to := find(e.ToID, live)
		if from == nil || to == nil {
			continue
		}
		e.Geometry = derive(from.Position, to.Position)
		kept = append(kept, e)
	}
	m.edges = kept
}

// Release removes every edge where nodeID is an endpoint. Called when a node
// is archived.
func (m *Manager) Release(nodeID string) {
	kept := m.edges[:0]
	for _, e := range m.edges {
		if e.FromID == nodeID || e.ToID == nodeID {
			continue
		}
		kept = append(kept, e)
	}
	m.edges = kept
}

// All returns the current connections. The slice is a fresh copy with
// value-copied entries so callers cannot mutate manager state.
func (m *Manager) All() []schema.Connection {
	out := make([]schema.Connection, len(m.edges))
	for i, e := range m.edges {
		out[i] = *e
	}
	return out
}

// Len returns the number of live connections.
func (m *Manager) Len() int {
	return len(m.edges)
}

func derive(start, end schema.Point) schema.Geometry {
	dx := end.X - start.X
	dy := end.Y - start.Y
	return schema.Geometry{
		Start:  start,
		End:    end,
		Length: math.Hypot(dx, dy),
		Angle:  math.Atan2(dy, dx),
	}
}

func find(id string, live []*schema.Node) *schema.Node {
	for _, n := range live {
		if n.ID == id {
			return n
		}
	}
	return nil
}
