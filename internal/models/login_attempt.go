package models

import "time"

// LoginAttemptRecord is the per-identity failed attempt counter.
// A record with Attempts == 0 never exists; success deletes the row.
type LoginAttemptRecord struct {
	Identity      Identity   `db:"identity" json:"identity"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastAttemptAt time.Time  `db:"last_attempt_at" json:"last_attempt_at"`
	LockedUntil   *time.Time `db:"locked_until" json:"locked_until,omitempty"`
}

// IsLocked reports whether the temporary lock window is still open at now.
func (r *LoginAttemptRecord) IsLocked(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}

// DeniesAuthentication applies the ledger half of the admission rule.
// An explicit lock timestamp is authoritative; a record that reached the
// threshold without one is treated as locked.
func (r *LoginAttemptRecord) DeniesAuthentication(now time.Time, maxAttempts int) bool {
	if r.LockedUntil != nil {
		return r.LockedUntil.After(now)
	}
	return r.Attempts >= maxAttempts
}
