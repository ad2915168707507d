package process

import (
	"encoding/json"
	"time"
)

// Status is the liveness record kept for a single tracked process.
// ExpirationSeconds is captured when the record is created and never re-read
// from configuration afterwards.
type Status struct {
	ID                string    `json:"process_id"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	ExpirationSeconds int       `json:"process_expiration_in_seconds"`
	KeepAlive         bool      `json:"keep_alive"`
}

// IsAliveAt reports whether the last heartbeat is within the expiration window at now.
// The boundary is inclusive: a record exactly ExpirationSeconds old is still alive.
func (s Status) IsAliveAt(now time.Time) bool {
	return now.Sub(s.LastHeartbeat) <= time.Duration(s.ExpirationSeconds)*time.Second
}

// IsAlive is IsAliveAt evaluated against the current wall clock.
func (s Status) IsAlive() bool { return s.IsAliveAt(time.Now()) }

// Expiration returns the TTL as a duration.
func (s Status) Expiration() time.Duration {
	return time.Duration(s.ExpirationSeconds) * time.Second
}

// StatusView is the transport form of a record with is_alive evaluated at a
// given instant.
type StatusView struct {
	ID                string    `json:"process_id"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	ExpirationSeconds int       `json:"process_expiration_in_seconds"`
	KeepAlive         bool      `json:"keep_alive"`
	IsAlive           bool      `json:"is_alive"`
}

// ViewAt renders s with liveness evaluated at now. Callers holding a clock
// (the registry) should use this instead of MarshalJSON.
func (s Status) ViewAt(now time.Time) StatusView {
	return StatusView{
		ID:                s.ID,
		LastHeartbeat:     s.LastHeartbeat,
		ExpirationSeconds: s.ExpirationSeconds,
		KeepAlive:         s.KeepAlive,
		IsAlive:           s.IsAliveAt(now),
	}
}

// ViewsAt renders every record at the same instant.
func ViewsAt(in []Status, now time.Time) []StatusView {
	out := make([]StatusView, 0, len(in))
	for _, s := range in {
		out = append(out, s.ViewAt(now))
	}
	return out
}

// MarshalJSON encodes s with is_alive evaluated against the wall clock.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ViewAt(time.Now()))
}

// UnmarshalJSON accepts the encoded form and drops is_alive, which is never stored.
func (s *Status) UnmarshalJSON(b []byte) error {
	var v StatusView
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Status{
		ID:                v.ID,
		LastHeartbeat:     v.LastHeartbeat,
		ExpirationSeconds: v.ExpirationSeconds,
		KeepAlive:         v.KeepAlive,
	}
	return nil
}

// FilterAlive returns the records alive at now, preserving order.
func FilterAlive(in []Status, now time.Time) []Status {
	out := make([]Status, 0, len(in))
	for _, s := range in {
		if s.IsAliveAt(now) {
			out = append(out, s)
		}
	}
	return out
}
