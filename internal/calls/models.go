package calls

import "time"

// Session is the persisted record of one bridged call.
//
// Invariants:
//   - TenantID is required on every row (the fallback tenant id when no tenant matched).
//   - A session is created in_progress before any audio flows and is finalized
//     exactly once; EndedAt is never before StartedAt.
type Session struct {
	CallID   string `json:"call_id" db:"call_id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	StreamID string `json:"stream_id,omitempty" db:"stream_id"`

	CallerNumber string    `json:"caller_number" db:"caller_number"`
	CalledNumber string    `json:"called_number" db:"called_number"`
	Direction    Direction `json:"direction" db:"direction"`

	Status Status `json:"status" db:"status"`

	// FallbackTenant is set when the call ran on the default configuration.
	FallbackTenant bool `json:"fallback_tenant" db:"fallback_tenant"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is whole seconds, rounded.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	Transcript  string   `json:"transcript" db:"transcript"`
	Summary     string   `json:"summary,omitempty" db:"summary"`
	ActionItems []string `json:"action_items" db:"action_items"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection maps a free-form direction parameter. Twilio reports
// outbound legs as "outbound-api" or "outbound-dial".
func ParseDirection(s string) Direction {
	switch {
	case len(s) >= 8 && s[:8] == "outbound":
		return DirectionOutbound
	default:
		return DirectionInbound
	}
}
