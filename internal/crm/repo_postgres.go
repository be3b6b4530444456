package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"voice-bridge/pkg/utils"
)

// PostgresRepo stores clients and bookings in Postgres.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const clientColumns = `id, tenant_id, name, phone, email, status, source, notes, created_at, updated_at`

func (r *PostgresRepo) FindOrCreateClient(ctx context.Context, in ClientInput) (Client, error) {
	var out Client
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		c, err := findOrCreateClient(ctx, tx, in)
		out = c
		return err
	})
	return out, err
}

func (r *PostgresRepo) BookClient(ctx context.Context, in ClientInput, b Booking) (Booking, Client, error) {
	var (
		outB Booking
		outC Client
	)
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx *sql.Tx) error {
		var clash int
		err := tx.QueryRowContext(ctx, `
SELECT count(*) FROM bookings
WHERE tenant_id = $1 AND starts_at < $3 AND ends_at > $2`, b.TenantID, b.StartsAt, b.EndsAt).Scan(&clash)
		if err != nil {
			return fmt.Errorf("crm: check overlap: %w", err)
		}
		if clash > 0 {
			return ErrSlotTaken
		}

		c, err := findOrCreateClient(ctx, tx, in)
		if err != nil {
			return err
		}
		b.ClientID = c.ID
		err = tx.QueryRowContext(ctx, `
INSERT INTO bookings (id, tenant_id, client_id, service, starts_at, ends_at, notes, source, call_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`,
			b.ID, b.TenantID, b.ClientID, b.Service, b.StartsAt, b.EndsAt, b.Notes, b.Source, b.CallID).Scan(&b.CreatedAt)
		if err != nil {
			return fmt.Errorf("crm: insert booking: %w", err)
		}
		outB, outC = b, c
		return nil
	})
	return outB, outC, err
}

func (r *PostgresRepo) BookingsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, client_id, service, starts_at, ends_at, notes, source, call_id, created_at
FROM bookings
WHERE tenant_id = $1 AND starts_at < $3 AND ends_at > $2
ORDER BY starts_at`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("crm: list bookings: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ClientID, &b.Service, &b.StartsAt, &b.EndsAt, &b.Notes, &b.Source, &b.CallID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("crm: scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func findOrCreateClient(ctx context.Context, q queryer, in ClientInput) (Client, error) {
	var (
		c   Client
		err error = sql.ErrNoRows
	)
	if in.Phone != "" {
		c, err = scanClient(q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients
WHERE tenant_id = $1 AND phone = $2 ORDER BY created_at LIMIT 1 FOR UPDATE`, in.TenantID, in.Phone))
	}
	if errors.Is(err, sql.ErrNoRows) && in.Email != "" {
		c, err = scanClient(q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients
WHERE tenant_id = $1 AND lower(email) = $2 ORDER BY created_at LIMIT 1 FOR UPDATE`, in.TenantID, in.Email))
	}

	switch {
	case err == nil:
		c = mergeClient(c, in)
		_, err = q.ExecContext(ctx, `
UPDATE clients SET name = $2, phone = $3, email = $4, status = $5, notes = $6, updated_at = now()
WHERE id = $1`, c.ID, c.Name, c.Phone, c.Email, string(c.Status), c.Notes)
		if err != nil {
			return Client{}, fmt.Errorf("crm: update client: %w", err)
		}
		return c, nil
	case errors.Is(err, sql.ErrNoRows):
		c = newClient(in)
		c.ID = uuid.NewString()
		err = q.QueryRowContext(ctx, `
INSERT INTO clients (id, tenant_id, name, phone, email, status, source, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at`,
			c.ID, c.TenantID, c.Name, c.Phone, c.Email, string(c.Status), c.Source, c.Notes).Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return Client{}, fmt.Errorf("crm: insert client: %w", err)
		}
		return c, nil
	default:
		return Client{}, fmt.Errorf("crm: find client: %w", err)
	}
}

func scanClient(row *sql.Row) (Client, error) {
	var (
		c      Client
		status string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &status, &c.Source, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	c.Status = ClientStatus(status)
	return c, err
}
