package store

import "time"

// Deadline is the absolute instant a key stops being readable. The zero value
// never expires. Both the lazy read check and the sweep go through Expired.
type Deadline struct {
	at time.Time
}

// NewDeadline returns the deadline ttl after now; ttl <= 0 yields no deadline.
func NewDeadline(now time.Time, ttl time.Duration) Deadline {
	if ttl <= 0 {
		return Deadline{}
	}
	return Deadline{at: now.Add(ttl)}
}

// Expired reports whether now is at or past the deadline.
func (d Deadline) Expired(now time.Time) bool {
	if d.at.IsZero() {
		return false
	}
	return !now.Before(d.at)
}

// Time returns the absolute deadline, zero if none.
func (d Deadline) Time() time.Time {
	return d.at
}
