package crm

import "time"

// Client is a contact captured by a tenant. Leads are clients with status lead.
//
// Uniqueness is soft: clients are matched by phone, then by email, inside
// FindOrCreateClient. There is no hard constraint.
type Client struct {
	ID       string       `json:"id" db:"id"`
	TenantID string       `json:"tenant_id" db:"tenant_id"`
	Name     string       `json:"name" db:"name"`
	Phone    string       `json:"phone,omitempty" db:"phone"`
	Email    string       `json:"email,omitempty" db:"email"`
	Status   ClientStatus `json:"status" db:"status"`
	Source   string       `json:"source,omitempty" db:"source"`
	Notes    string       `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ClientStatus string

const (
	ClientStatusLead     ClientStatus = "lead"
	ClientStatusCustomer ClientStatus = "customer"
)

// SourceVoiceCall marks records created by the voice bridge.
const SourceVoiceCall = "voice_call"

// Booking always belongs to exactly one tenant and one client.
type Booking struct {
	ID       string    `json:"id" db:"id"`
	TenantID string    `json:"tenant_id" db:"tenant_id"`
	ClientID string    `json:"client_id" db:"client_id"`
	Service  string    `json:"service,omitempty" db:"service"`
	StartsAt time.Time `json:"starts_at" db:"starts_at"`
	EndsAt   time.Time `json:"ends_at" db:"ends_at"`
	Notes    string    `json:"notes,omitempty" db:"notes"`
	Source   string    `json:"source,omitempty" db:"source"`
	CallID   string    `json:"call_id,omitempty" db:"call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartsAt.Before(end) && start.Before(b.EndsAt)
}

// ClientInput is the contact data used to find or create a client.
type ClientInput struct {
	TenantID string
	Name     string
	Phone    string
	Email    string
	Status   ClientStatus
	Source   string
	Notes    string
}

// Slot is a bookable interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
