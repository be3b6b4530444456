package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresRepo stores sessions in the call_sessions table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, s Session) error {
	if s.CallID == "" || s.TenantID == "" {
		return ErrInvalidInput
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO call_sessions
    (call_id, tenant_id, stream_id, caller_number, called_number, direction, status, fallback_tenant, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (call_id) DO NOTHING`,
		s.CallID, s.TenantID, s.StreamID, s.CallerNumber, s.CalledNumber,
		string(s.Direction), string(s.Status), s.FallbackTenant, s.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("calls: create session: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Finalize(ctx context.Context, callID string, c Completion) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE call_sessions
SET status = $2, ended_at = $3, duration_seconds = $4, transcript = $5, updated_at = now()
WHERE call_id = $1 AND status = 'in_progress'`,
		callID, string(c.Status), c.EndedAt.UTC(), c.DurationSeconds, c.Transcript)
	if err != nil {
		return false, fmt.Errorf("calls: finalize session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("calls: finalize rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepo) UpdateSummary(ctx context.Context, callID, summary string, actionItems []string) error {
	if actionItems == nil {
		actionItems = []string{}
	}
	items, err := json.Marshal(actionItems)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE call_sessions SET summary = $2, action_items = $3, updated_at = now()
WHERE call_id = $1`, callID, summary, items)
	if err != nil {
		return fmt.Errorf("calls: update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, callID string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT call_id, tenant_id, stream_id, caller_number, called_number, direction, status,
       fallback_tenant, started_at, ended_at, duration_seconds, transcript, summary,
       action_items, created_at, updated_at
FROM call_sessions
WHERE tenant_id = $1 AND call_id = $2`, tenantID, callID)

	var (
		s       Session
		dir     string
		status  string
		ended   sql.NullTime
		itemsJS []byte
	)
	err := row.Scan(&s.CallID, &s.TenantID, &s.StreamID, &s.CallerNumber, &s.CalledNumber, &dir, &status,
		&s.FallbackTenant, &s.StartedAt, &ended, &s.DurationSeconds, &s.Transcript, &s.Summary,
		&itemsJS, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("calls: get session: %w", err)
	}
	s.Direction = Direction(dir)
	s.Status = Status(status)
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	s.ActionItems = []string{}
	if len(itemsJS) > 0 {
		if err := json.Unmarshal(itemsJS, &s.ActionItems); err != nil {
			return Session{}, fmt.Errorf("calls: decode action_items: %w", err)
		}
	}
	return s, nil
}
