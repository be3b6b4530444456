package tenants

import (
	"encoding/json"
	"strings"
	"time"
)

// Config is a tenant's voice configuration as the bridge sees it.
//
// Invariant: PhoneNumber is unique across tenants (enforced by a partial
// unique index in storage). The bridge never writes this record.
type Config struct {
	TenantID     string `json:"tenant_id" db:"id"`
	BusinessName string `json:"business_name" db:"business_name"`
	PhoneNumber  string `json:"phone_number" db:"phone_number"`

	AIName         string `json:"ai_name" db:"ai_name"`
	WelcomeMessage string `json:"welcome_message" db:"welcome_message"`

	// LegacyPrompt is the flat custom_prompt column kept for older tenants.
	// Read it through ResolvePrompt, never directly.
	LegacyPrompt string `json:"legacy_prompt,omitempty" db:"custom_prompt"`

	// Settings is the structured voice_settings document.
	Settings Settings `json:"settings" db:"voice_settings"`

	VoiceID  string `json:"voice_id" db:"voice_id"`
	Model    string `json:"model" db:"model"`
	Timezone string `json:"timezone" db:"timezone"`

	FAQs        []FAQ        `json:"faqs" db:"faqs"`
	CustomTools []CustomTool `json:"custom_tools" db:"custom_tools"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Fallback is set when no tenant matched and DefaultConfig was substituted.
	Fallback bool `json:"fallback"`
}

// Settings is the structured configuration document stored as JSONB.
type Settings struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CustomTool is a tenant-defined function the model may call. The bridge
// executes it by POSTing the arguments to WebhookURL.
type CustomTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	WebhookURL  string          `json:"webhook_url"`
	TimeoutMS   int             `json:"timeout_ms,omitempty"`
}

// Timeout returns the tool's configured timeout, or zero when unset.
func (t CustomTool) Timeout() time.Duration {
	if t.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

// FallbackTenantID identifies the default configuration in logs and call records.
const FallbackTenantID = "default"

// DefaultConfig is the brand-neutral configuration used when no tenant matches.
func DefaultConfig() Config {
	return Config{
		TenantID:       FallbackTenantID,
		BusinessName:   "our office",
		AIName:         "Ava",
		WelcomeMessage: "Hello, thanks for calling. How can I help you today?",
		Timezone:       "UTC",
		Fallback:       true,
	}
}

// Location returns the tenant's timezone, defaulting to UTC.
func (c Config) Location() *time.Location {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NormalizePhone reduces a dialed number to "+" followed by digits.
// Twilio sends E.164, but dashboard-entered numbers may carry spaces,
// dashes or parentheses. Non-numeric values (e.g. "anonymous") become "".
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return ""
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}
