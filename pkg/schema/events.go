package schema

// Event type constants for the engine's event stream.
const (
	EventNodeSpawned    = "node_spawned"
	EventNodeCollapsing = "node_collapsing"
	EventNodeArchived   = "node_archived"
	EventNodeCancelled  = "node_cancelled"

	EventBatchStarted   = "batch_started"
	EventBatchCompleted = "batch_completed"
	EventBatchCancelled = "batch_cancelled"

	EventLayoutUpdated = "layout_updated"
)

// BatchStatus represents the lifecycle state of a collapse batch.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)
