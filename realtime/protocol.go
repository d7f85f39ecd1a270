// Package realtime carries collaborative gantt edits between clients
// over a persistent websocket, with message batching, idempotent
// receipt and conflict signaling.
package realtime

import (
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Wire message types.
const (
	TypeTaskUpdate          = "task:update"
	TypeTaskUpdateConfirmed = "task:update:confirmed"
	TypeDependencyUpdate    = "dependency:update"
	TypeUserActivity        = "user:activity"
	TypeConflict            = "conflict"
	TypeBatch               = "batch"
)

// User activity actions.
const (
	ActivityEditing = "editing"
	ActivityViewing = "viewing"
	ActivityLeft    = "left"
)

// Envelope is the framing for every message on the socket. Data holds
// the type-specific payload; for batch envelopes it is a nested
// Envelope array.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	MessageID string          `json:"messageId,omitempty"`
}

// NewEnvelope wraps a payload with a fresh message id.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Data: data, MessageID: uuid.NewString()}, nil
}

// UserActivity announces what a collaborator is doing in the project.
type UserActivity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Action   string `json:"action"`
	TaskID   string `json:"taskId,omitempty"`
}

// Conflict reports a version mismatch detected server-side. The client
// surfaces it to a handler and never resolves it on its own.
type Conflict struct {
	Type          string `json:"type"`
	LocalVersion  int    `json:"localVersion"`
	ServerVersion int    `json:"serverVersion"`
}
