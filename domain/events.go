package domain

import "encoding/json"

// Change event types enqueued by the storage layer after a successful
// write.
const (
	TaskCreatedEvent     = "task-created"
	TaskUpdatedEvent     = "task-updated"
	TaskDeletedEvent     = "task-deleted"
	TaskTransferredEvent = "task-transferred"
	TaskSyncedEvent      = "task-synced"
)

// TaskChangedEvent describes a persisted mutation for downstream
// consumers (read models, audit).
type TaskChangedEvent struct {
	Type      string          `json:"Type"`
	ViewType  ViewType        `json:"ViewType"`
	EntityID  string          `json:"EntityId"`
	ProjectID string          `json:"ProjectId,omitempty"`
	Data      json.RawMessage `json:"Data,omitempty"`
	UserID    string          `json:"UserId,omitempty"`
	Timestamp int64           `json:"Timestamp"`
}
