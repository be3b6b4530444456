package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]Session

	// FinalizeCalls counts Finalize invocations that reached the store.
	FinalizeCalls int
	// Err, when set, is returned by every write.
	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{sessions: map[string]Session{}} }

func (r *MemoryRepo) Create(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if s.CallID == "" || s.TenantID == "" {
		return ErrInvalidInput
	}
	if _, ok := r.sessions[s.CallID]; ok {
		return nil
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.ActionItems == nil {
		s.ActionItems = []string{}
	}
	r.sessions[s.CallID] = s
	return nil
}

func (r *MemoryRepo) Finalize(ctx context.Context, callID string, c Completion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinalizeCalls++
	if r.Err != nil {
		return false, r.Err
	}
	s, ok := r.sessions[callID]
	if !ok || s.Status != StatusInProgress {
		return false, nil
	}
	ended := c.EndedAt
	s.Status = c.Status
	s.EndedAt = &ended
	s.DurationSeconds = c.DurationSeconds
	s.Transcript = c.Transcript
	s.UpdatedAt = time.Now().UTC()
	r.sessions[callID] = s
	return true, nil
}

func (r *MemoryRepo) UpdateSummary(ctx context.Context, callID, summary string, actionItems []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	s, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	s.Summary = summary
	s.ActionItems = append([]string(nil), actionItems...)
	s.UpdatedAt = time.Now().UTC()
	r.sessions[callID] = s
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, callID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callID]
	if !ok || s.TenantID != tenantID {
		return Session{}, ErrNotFound
	}
	return s, nil
}
