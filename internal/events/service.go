package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sink is the transport contract for lifecycle events. Append-only.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Service stamps and publishes lifecycle events.
//
// Emission is best-effort: callers log failures and move on.
type Service struct {
	sink  Sink
	clock func() time.Time
}

func NewService(sink Sink) *Service {
	return &Service{sink: sink, clock: time.Now}
}

var ErrInvalidEvent = errors.New("events: invalid event")

func (s *Service) Emit(ctx context.Context, e Event) error {
	if s == nil || s.sink == nil {
		return errors.New("events: sink not configured")
	}
	if e.TenantID == "" || e.CallID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.sink.Publish(ctx, e)
}

// EmitJSON marshals payload and emits an event of type t.
func (s *Service) EmitJSON(ctx context.Context, t Type, tenantID, callID string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("events: marshal payload: %w", err)
		}
		raw = b
	}
	return s.Emit(ctx, Event{Type: t, TenantID: tenantID, CallID: callID, Payload: raw})
}
