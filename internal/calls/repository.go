package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("calls: session not found")
	ErrInvalidInput = errors.New("calls: invalid session")
)

// Completion is the terminal update applied to an in-progress session.
type Completion struct {
	Status          Status
	EndedAt         time.Time
	DurationSeconds int
	Transcript      string
}

// Repository is the persistence contract for call sessions.
//
// Finalize must be conditional on the row still being in_progress and report
// whether it applied, so a second finalization is a no-op.
type Repository interface {
	Create(ctx context.Context, s Session) error
	Finalize(ctx context.Context, callID string, c Completion) (bool, error)
	UpdateSummary(ctx context.Context, callID, summary string, actionItems []string) error
	Get(ctx context.Context, tenantID, callID string) (Session, error)
}
