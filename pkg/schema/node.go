package schema

import "time"

// NodeKind is a presentational tag describing what a node represents.
// The set below covers the known values; unknown kinds are accepted as-is.
type NodeKind string

const (
	KindUnderstanding NodeKind = "understanding"
	KindWorker        NodeKind = "worker"
	KindHelper        NodeKind = "helper"
	KindExpert        NodeKind = "expert"
)

// NodeState represents the lifecycle state of a node.
type NodeState string

const (
	NodeStateSpawning   NodeState = "spawning"
	NodeStateActive     NodeState = "active"
	NodeStateCollapsing NodeState = "collapsing"
	NodeStateArchived   NodeState = "archived"
)

// Point is a 2D position on the viewport.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one transient unit of visualized work. Identity and registration
// belong to the registry; Position is owned by the layout engine and State
// by the collapse sequencer.
type Node struct {
	ID        string    `json:"id"`
	Kind      NodeKind  `json:"kind"`
	Label     string    `json:"label"`
	ParentID  string    `json:"parent_id,omitempty"`
	Position  Point     `json:"position"`
	State     NodeState `json:"state"`
	Seq       int64     `json:"seq"`
	SpawnedAt time.Time `json:"spawned_at"`
}

// Geometry is the derived visual shape of a connection. It is recomputed
// from the endpoints' current positions on every layout pass and is never
// authoritative.
type Geometry struct {
	Start  Point   `json:"start"`
	End    Point   `json:"end"`
	Length float64 `json:"length"`
	Angle  float64 `json:"angle"`
}

// Connection is a directed visual edge from a parent node to a child it
// spawned.
type Connection struct {
	FromID   string   `json:"from_id"`
	ToID     string   `json:"to_id"`
	Geometry Geometry `json:"geometry"`
}

// HistoryEntry is the immutable record of a completed node. Created exactly
// once when a node reaches archived; never mutated afterwards.
type HistoryEntry struct {
	ID              string    `json:"id"`
	OriginalID      string    `json:"original_id"`
	Kind            NodeKind  `json:"kind"`
	Label           string    `json:"label"`
	CompletionOrder int64     `json:"completion_order"`
	Annotation      string    `json:"annotation,omitempty"`
	ArchivedAt      time.Time `json:"archived_at"`
}
