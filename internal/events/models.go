package events

import (
	"encoding/json"
	"time"
)

// Event is an append-only call lifecycle record published for downstream
// consumers (automation, analytics). Events are never updated.
type Event struct {
	ID       string `json:"id"`
	Type     Type   `json:"type"`
	TenantID string `json:"tenant_id"`
	CallID   string `json:"call_id"`

	// Payload is the type-specific JSON body.
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Type string

const (
	TypeCallStarted    Type = "call.started"
	TypeCallCompleted  Type = "call.completed"
	TypeCallSummarized Type = "call.summarized"
)
