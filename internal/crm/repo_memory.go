package crm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository for tests and local development.
type MemoryRepo struct {
	mu       sync.Mutex
	clients  []Client
	bookings []Booking

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) FindOrCreateClient(ctx context.Context, in ClientInput) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Client{}, r.Err
	}
	return r.findOrCreateLocked(in), nil
}

func (r *MemoryRepo) findOrCreateLocked(in ClientInput) Client {
	now := time.Now().UTC()
	idx := -1
	for i, c := range r.clients {
		if c.TenantID == in.TenantID && in.Phone != "" && c.Phone == in.Phone {
			idx = i
			break
		}
	}
	if idx < 0 && in.Email != "" {
		for i, c := range r.clients {
			if c.TenantID == in.TenantID && c.Email == in.Email {
				idx = i
				break
			}
		}
	}
	if idx >= 0 {
		c := mergeClient(r.clients[idx], in)
		c.UpdatedAt = now
		r.clients[idx] = c
		return c
	}
	c := newClient(in)
	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now
	r.clients = append(r.clients, c)
	return c
}

func (r *MemoryRepo) BookClient(ctx context.Context, in ClientInput, b Booking) (Booking, Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Booking{}, Client{}, r.Err
	}
	for _, existing := range r.bookings {
		if existing.TenantID == b.TenantID && existing.Overlaps(b.StartsAt, b.EndsAt) {
			return Booking{}, Client{}, ErrSlotTaken
		}
	}
	c := r.findOrCreateLocked(in)
	b.ClientID = c.ID
	b.CreatedAt = time.Now().UTC()
	r.bookings = append(r.bookings, b)
	return b, c, nil
}

func (r *MemoryRepo) BookingsBetween(ctx context.Context, tenantID string, from, to time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []Booking
	for _, b := range r.bookings {
		if b.TenantID == tenantID && b.Overlaps(from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Clients returns a copy of every stored client.
func (r *MemoryRepo) Clients() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Client(nil), r.clients...)
}

func newClient(in ClientInput) Client {
	status := in.Status
	if status == "" {
		status = ClientStatusLead
	}
	return Client{
		TenantID: in.TenantID,
		Name:     in.Name,
		Phone:    in.Phone,
		Email:    in.Email,
		Status:   status,
		Source:   in.Source,
		Notes:    in.Notes,
	}
}

// mergeClient fills gaps in an existing client. A lead becomes a customer
// once it books; a customer is never downgraded.
func mergeClient(c Client, in ClientInput) Client {
	if c.Name == "" {
		c.Name = in.Name
	}
	if c.Phone == "" {
		c.Phone = in.Phone
	}
	if c.Email == "" {
		c.Email = in.Email
	}
	if in.Status == ClientStatusCustomer {
		c.Status = ClientStatusCustomer
	}
	if in.Notes != "" {
		if c.Notes == "" {
			c.Notes = in.Notes
		} else {
			c.Notes = c.Notes + "\n" + in.Notes
		}
	}
	return c
}
