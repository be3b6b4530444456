package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"voice-bridge/internal/tenants"
)

// Service implements the business side effects the voice agent can trigger.
type Service struct {
	repo  Repository
	hours Hours
	clock func() time.Time
}

type Option func(*Service)

func WithHours(h Hours) Option { return func(s *Service) { s.hours = h } }

func WithClock(clock func() time.Time) Option { return func(s *Service) { s.clock = clock } }

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, hours: DefaultHours(), clock: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) SlotLength() time.Duration { return s.hours.SlotLength }

// Availability returns free slots for the given local date (YYYY-MM-DD).
func (s *Service) Availability(ctx context.Context, tenantID string, loc *time.Location, date string) ([]Slot, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	bookings, err := s.repo.BookingsBetween(ctx, tenantID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return FreeSlots(day, loc, s.hours, bookings, s.clock()), nil
}

// BookingRequest is what the agent collected from the caller.
type BookingRequest struct {
	TenantID string
	CallID   string
	Name     string
	Phone    string
	Email    string
	Service  string
	Notes    string
	StartsAt time.Time
	// Duration defaults to the slot length.
	Duration time.Duration
	Location *time.Location
}

func (s *Service) CreateBooking(ctx context.Context, r BookingRequest) (Booking, Client, error) {
	if r.TenantID == "" || r.StartsAt.IsZero() {
		return Booking{}, Client{}, fmt.Errorf("%w: tenant and start time are required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.Name) == "" && strings.TrimSpace(r.Phone) == "" && strings.TrimSpace(r.Email) == "" {
		return Booking{}, Client{}, fmt.Errorf("%w: name, phone or email is required", ErrInvalidInput)
	}
	if r.Duration <= 0 {
		r.Duration = s.hours.SlotLength
	}
	if r.Location == nil {
		r.Location = time.UTC
	}
	end := r.StartsAt.Add(r.Duration)
	if r.StartsAt.Before(s.clock()) {
		return Booking{}, Client{}, fmt.Errorf("%w: start time is in the past", ErrInvalidInput)
	}
	if !s.hours.Contains(r.StartsAt, end, r.Location) {
		return Booking{}, Client{}, ErrOutsideHours
	}

	in := ClientInput{
		TenantID: r.TenantID,
		Name:     strings.TrimSpace(r.Name),
		Phone:    tenants.NormalizePhone(r.Phone),
		Email:    normalizeEmail(r.Email),
		Status:   ClientStatusCustomer,
		Source:   SourceVoiceCall,
	}
	b := Booking{
		ID:       uuid.NewString(),
		TenantID: r.TenantID,
		Service:  strings.TrimSpace(r.Service),
		StartsAt: r.StartsAt.UTC(),
		EndsAt:   end.UTC(),
		Notes:    strings.TrimSpace(r.Notes),
		Source:   SourceVoiceCall,
		CallID:   r.CallID,
	}
	return s.repo.BookClient(ctx, in, b)
}

// LeadRequest is contact data captured without a booking.
type LeadRequest struct {
	TenantID string
	Name     string
	Phone    string
	Email    string
	Notes    string
}

func (s *Service) SaveLead(ctx context.Context, r LeadRequest) (Client, error) {
	if r.TenantID == "" {
		return Client{}, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	in := ClientInput{
		TenantID: r.TenantID,
		Name:     strings.TrimSpace(r.Name),
		Phone:    tenants.NormalizePhone(r.Phone),
		Email:    normalizeEmail(r.Email),
		Status:   ClientStatusLead,
		Source:   SourceVoiceCall,
		Notes:    strings.TrimSpace(r.Notes),
	}
	if in.Phone == "" && in.Email == "" {
		return Client{}, fmt.Errorf("%w: phone or email is required", ErrInvalidInput)
	}
	return s.repo.FindOrCreateClient(ctx, in)
}

func normalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.Contains(s, "@") {
		return ""
	}
	return s
}
