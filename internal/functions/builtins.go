package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-bridge/internal/crm"
)

const (
	NameCheckAvailability = "checkAvailability"
	NameCreateBooking     = "createBooking"
	NameSaveLead          = "saveLead"
)

// CRM is the data layer the builtin functions call into.
type CRM interface {
	Availability(ctx context.Context, tenantID string, loc *time.Location, date string) ([]crm.Slot, error)
	CreateBooking(ctx context.Context, r crm.BookingRequest) (crm.Booking, crm.Client, error)
	SaveLead(ctx context.Context, r crm.LeadRequest) (crm.Client, error)
}

// Builtins returns the functions every tenant gets.
func Builtins(svc CRM) []Tool {
	return []Tool{
		{
			Name:           NameCheckAvailability,
			Description:    "List open appointment times on a date. Call before offering times to the caller.",
			Parameters:     json.RawMessage(`{"type":"object","properties":{"date":{"type":"string","description":"Local date, YYYY-MM-DD"}},"required":["date"]}`),
			FailureMessage: "Unable to check availability right now.",
			Handler:        checkAvailability(svc),
		},
		{
			Name:        NameCreateBooking,
			Description: "Book an appointment for the caller once they have confirmed a time.",
			Parameters: json.RawMessage(`{"type":"object","properties":{` +
				`"name":{"type":"string"},` +
				`"phone":{"type":"string","description":"Defaults to the caller's number"},` +
				`"email":{"type":"string"},` +
				`"service":{"type":"string"},` +
				`"start_time":{"type":"string","description":"Local start time, ISO 8601 (YYYY-MM-DDTHH:MM)"},` +
				`"notes":{"type":"string"}},` +
				`"required":["name","start_time"]}`),
			FailureMessage: "Unable to create the booking right now.",
			Handler:        createBooking(svc),
		},
		{
			Name:        NameSaveLead,
			Description: "Save the caller's contact details and reason for calling so staff can follow up.",
			Parameters: json.RawMessage(`{"type":"object","properties":{` +
				`"name":{"type":"string"},` +
				`"phone":{"type":"string","description":"Defaults to the caller's number"},` +
				`"email":{"type":"string"},` +
				`"notes":{"type":"string"}}}`),
			FailureMessage: "Unable to save your details right now.",
			Handler:        saveLead(svc),
		},
	}
}

func checkAvailability(svc CRM) Handler {
	return func(ctx context.Context, call CallContext, raw json.RawMessage) (string, error) {
		var args struct {
			Date string `json:"date"`
		}
		if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Date) == "" {
			return reply(map[string]any{"available": false, "message": "A date in YYYY-MM-DD format is required."})
		}
		loc := location(call)
		slots, err := svc.Availability(ctx, call.TenantID, loc, args.Date)
		if errors.Is(err, crm.ErrInvalidInput) {
			return reply(map[string]any{"available": false, "message": "That date could not be understood. Use YYYY-MM-DD."})
		}
		if err != nil {
			return "", err
		}
		times := make([]string, 0, len(slots))
		for _, s := range slots {
			times = append(times, s.Start.In(loc).Format("15:04"))
		}
		return reply(map[string]any{
			"date":      args.Date,
			"timezone":  loc.String(),
			"available": len(times) > 0,
			"slots":     times,
		})
	}
}

func createBooking(svc CRM) Handler {
	return func(ctx context.Context, call CallContext, raw json.RawMessage) (string, error) {
		var args struct {
			Name      string `json:"name"`
			Phone     string `json:"phone"`
			Email     string `json:"email"`
			Service   string `json:"service"`
			StartTime string `json:"start_time"`
			Notes     string `json:"notes"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return reply(map[string]any{"booked": false, "message": "The booking details were malformed."})
		}
		loc := location(call)
		start, err := ParseLocalTime(args.StartTime, loc)
		if err != nil {
			return reply(map[string]any{"booked": false, "message": "The start time could not be understood. Use YYYY-MM-DDTHH:MM."})
		}
		phone := args.Phone
		if strings.TrimSpace(phone) == "" {
			phone = call.Caller
		}
		b, _, err := svc.CreateBooking(ctx, crm.BookingRequest{
			TenantID: call.TenantID,
			CallID:   call.CallID,
			Name:     args.Name,
			Phone:    phone,
			Email:    args.Email,
			Service:  args.Service,
			Notes:    args.Notes,
			StartsAt: start,
			Location: loc,
		})
		switch {
		case errors.Is(err, crm.ErrSlotTaken):
			return reply(map[string]any{"booked": false, "reason": "slot_taken", "message": "That time is already booked. Offer another time."})
		case errors.Is(err, crm.ErrOutsideHours):
			return reply(map[string]any{"booked": false, "reason": "outside_hours", "message": "That time is outside business hours."})
		case errors.Is(err, crm.ErrInvalidInput):
			return reply(map[string]any{"booked": false, "reason": "invalid", "message": err.Error()})
		case err != nil:
			return "", err
		}
		return reply(map[string]any{
			"booked":     true,
			"booking_id": b.ID,
			"starts_at":  b.StartsAt.In(loc).Format("2006-01-02T15:04"),
			"ends_at":    b.EndsAt.In(loc).Format("2006-01-02T15:04"),
		})
	}
}

func saveLead(svc CRM) Handler {
	return func(ctx context.Context, call CallContext, raw json.RawMessage) (string, error) {
		var args struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
			Email string `json:"email"`
			Notes string `json:"notes"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return reply(map[string]any{"saved": false, "message": "The contact details were malformed."})
		}
		phone := args.Phone
		if strings.TrimSpace(phone) == "" {
			phone = call.Caller
		}
		c, err := svc.SaveLead(ctx, crm.LeadRequest{
			TenantID: call.TenantID,
			Name:     args.Name,
			Phone:    phone,
			Email:    args.Email,
			Notes:    args.Notes,
		})
		if errors.Is(err, crm.ErrInvalidInput) {
			return reply(map[string]any{"saved": false, "message": "A phone number or email is needed to save the details."})
		}
		if err != nil {
			return "", err
		}
		return reply(map[string]any{"saved": true, "client_id": c.ID})
	}
}

// ParseLocalTime accepts RFC 3339 or a zone-less local time in loc.
func ParseLocalTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("functions: unrecognized time %q", s)
}

func location(call CallContext) *time.Location {
	if call.Location == nil {
		return time.UTC
	}
	return call.Location
}

func reply(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
