package record

import "time"

// Default retention windows.
const (
	DefaultStaleAfter    = 30 * 24 * time.Hour
	DefaultInactiveAfter = 7 * 24 * time.Hour
)

// RetentionPolicy decides which records a sweep removes. It looks only at
// lifecycle fields, never at business content.
type RetentionPolicy struct {
	// Now is the instant the sweep is evaluated at.
	Now time.Time
	// StaleBefore removes any record last updated before it.
	StaleBefore time.Time
	// InactiveBefore removes inactive records last updated before it.
	InactiveBefore time.Time
}

// NewRetentionPolicy builds a policy evaluated at now. Non-positive windows
// fall back to the defaults.
func NewRetentionPolicy(now time.Time, staleAfter, inactiveAfter time.Duration) RetentionPolicy {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if inactiveAfter <= 0 {
		inactiveAfter = DefaultInactiveAfter
	}
	return RetentionPolicy{
		Now:            now,
		StaleBefore:    now.Add(-staleAfter),
		InactiveBefore: now.Add(-inactiveAfter),
	}
}

// Expired reports whether rec must be removed.
func (p RetentionPolicy) Expired(rec *ContextRecord) bool {
	if rec.UpdatedAt.Before(p.StaleBefore) {
		return true
	}
	if !rec.IsActive && rec.UpdatedAt.Before(p.InactiveBefore) {
		return true
	}
	return !rec.ExpiresAt.IsZero() && !rec.ExpiresAt.After(p.Now)
}

// Horizon is the latest UpdatedAt a record can have and still be expired
// by the update-time rules.
func (p RetentionPolicy) Horizon() time.Time {
	if p.InactiveBefore.After(p.StaleBefore) {
		return p.InactiveBefore
	}
	return p.StaleBefore
}
