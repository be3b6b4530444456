package crm

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("crm: invalid input")
	ErrSlotTaken    = errors.New("crm: slot already booked")
	ErrOutsideHours = errors.New("crm: outside business hours")
)

// Repository is the data layer behind Service.
type Repository interface {
	// FindOrCreateClient matches by phone, then email, within the tenant.
	// A matched client has empty name/phone/email filled from in.
	FindOrCreateClient(ctx context.Context, in ClientInput) (Client, error)

	// BookClient atomically resolves the client and inserts b for it.
	// It returns ErrSlotTaken if b overlaps an existing booking.
	BookClient(ctx context.Context, in ClientInput, b Booking) (Booking, Client, error)

	BookingsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]Booking, error)
}
