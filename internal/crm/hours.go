package crm

import "time"

// Hours is the bookable schedule applied in the tenant's timezone.
type Hours struct {
	Open       time.Duration // offset from midnight
	Close      time.Duration
	SlotLength time.Duration
	Days       []time.Weekday
}

// DefaultHours is Monday to Friday, 09:00 to 17:00, 30 minute slots.
func DefaultHours() Hours {
	return Hours{
		Open:       9 * time.Hour,
		Close:      17 * time.Hour,
		SlotLength: 30 * time.Minute,
		Days:       []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

func (h Hours) openOn(d time.Weekday) bool {
	for _, w := range h.Days {
		if w == d {
			return true
		}
	}
	return false
}

// Contains reports whether [start, end) lies within the opening hours of start's day in loc.
func (h Hours) Contains(start, end time.Time, loc *time.Location) bool {
	s := start.In(loc)
	if !h.openOn(s.Weekday()) {
		return false
	}
	midnight := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	return !s.Before(midnight.Add(h.Open)) && !end.In(loc).After(midnight.Add(h.Close))
}

// FreeSlots lists open slots on day (interpreted in loc) that start after now
// and do not overlap any booking.
func FreeSlots(day time.Time, loc *time.Location, h Hours, bookings []Booking, now time.Time) []Slot {
	d := day.In(loc)
	if !h.openOn(d.Weekday()) || h.SlotLength <= 0 {
		return nil
	}
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	closeAt := midnight.Add(h.Close)

	var out []Slot
	for start := midnight.Add(h.Open); !start.Add(h.SlotLength).After(closeAt); start = start.Add(h.SlotLength) {
		end := start.Add(h.SlotLength)
		if start.Before(now) {
			continue
		}
		taken := false
		for _, b := range bookings {
			if b.Overlaps(start, end) {
				taken = true
				break
			}
		}
		if !taken {
			out = append(out, Slot{Start: start, End: end})
		}
	}
	return out
}
