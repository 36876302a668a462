package models

import "time"

// BlockedIdentityRecord is a long-term deny entry. A nil BlockedUntil is permanent.
// Expired rows may linger physically; IsLive is the only authority on liveness.
type BlockedIdentityRecord struct {
	Identity     Identity   `db:"identity" json:"identity"`
	Reason       string     `db:"reason" json:"reason"`
	BlockedUntil *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// IsPermanent reports whether the block has no expiry.
func (b *BlockedIdentityRecord) IsPermanent() bool {
	return b.BlockedUntil == nil
}

// IsLive reports whether the block is in force at now.
func (b *BlockedIdentityRecord) IsLive(now time.Time) bool {
	return b.BlockedUntil == nil || b.BlockedUntil.After(now)
}
