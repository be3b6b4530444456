package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore reads tenants through database/sql (pgx stdlib driver).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// tenantColumns is shared by every lookup so all paths see the same fields.
const tenantColumns = `
id, business_name, COALESCE(phone_number, ''), ai_name, welcome_message, custom_prompt,
voice_settings, voice_id, model, faqs, custom_tools, timezone, updated_at
`

func (s *PostgresStore) ByPhoneNumber(ctx context.Context, phoneNumber string) (Config, bool, error) {
	n := NormalizePhone(phoneNumber)
	if n == "" {
		return Config{}, false, nil
	}
	q := `SELECT ` + tenantColumns + ` FROM tenants WHERE phone_number = $1`
	return s.queryOne(ctx, q, n)
}

func (s *PostgresStore) ByID(ctx context.Context, tenantID string) (Config, bool, error) {
	if tenantID == "" {
		return Config{}, false, nil
	}
	q := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return s.queryOne(ctx, q, tenantID)
}

func (s *PostgresStore) queryOne(ctx context.Context, q string, arg any) (Config, bool, error) {
	if s.db == nil {
		return Config{}, false, errors.New("tenants: db not configured")
	}
	c, err := scanConfig(s.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Config{}, false, nil
		}
		return Config{}, false, err
	}
	return c, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (Config, error) {
	var (
		c                          Config
		settings, faqs, customTool []byte
	)
	if err := row.Scan(
		&c.TenantID,
		&c.BusinessName,
		&c.PhoneNumber,
		&c.AIName,
		&c.WelcomeMessage,
		&c.LegacyPrompt,
		&settings,
		&c.VoiceID,
		&c.Model,
		&faqs,
		&customTool,
		&c.Timezone,
		&c.UpdatedAt,
	); err != nil {
		return Config{}, err
	}
	if err := unmarshalJSONB(settings, &c.Settings); err != nil {
		return Config{}, fmt.Errorf("tenants: voice_settings: %w", err)
	}
	if err := unmarshalJSONB(faqs, &c.FAQs); err != nil {
		return Config{}, fmt.Errorf("tenants: faqs: %w", err)
	}
	if err := unmarshalJSONB(customTool, &c.CustomTools); err != nil {
		return Config{}, fmt.Errorf("tenants: custom_tools: %w", err)
	}
	return c, nil
}

func unmarshalJSONB(b []byte, dst any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}
