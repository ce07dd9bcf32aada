package store

import (
	"encoding/json"
	"time"
)

// Event is an immutable entry in the engine event log.
type Event struct {
	ID        int64           `json:"id"`
	BatchID   string          `json:"batch_id,omitempty"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}
