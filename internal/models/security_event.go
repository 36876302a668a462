package models

import "time"

// Action classifies a security event. The set is open; storage keeps the raw text.
type Action string

const (
	ActionPageAccess            Action = "PAGE_ACCESS"
	ActionBlockedIdentityAccess Action = "BLOCKED_IDENTITY_ACCESS"
	ActionAccountLocked         Action = "ACCOUNT_LOCKED"
	ActionIPBlocked             Action = "IP_BLOCKED"
	ActionIPUnblocked           Action = "IP_UNBLOCKED"
	ActionCSRFAttack            Action = "CSRF_ATTACK"
	ActionAdminLogin            Action = "ADMIN_LOGIN"
	ActionAdminLogout           Action = "ADMIN_LOGOUT"
	ActionSessionExpired        Action = "SESSION_EXPIRED"
	ActionStorageUnavailable    Action = "STORAGE_UNAVAILABLE"
)

// UnknownUserAgent is recorded when the request carried no User-Agent header.
const UnknownUserAgent = "Unknown"

// SecurityEvent is one append-only audit record. The engine never updates or
// deletes events; only the retention sweep may prune them.
type SecurityEvent struct {
	ID         int64     `db:"id" json:"id"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	Identity   Identity  `db:"identity" json:"identity"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	Action     Action    `db:"action" json:"action"`
	Details    string    `db:"details" json:"details"`
}

// IsWarning reports whether the action signals hostile or degraded activity.
func (a Action) IsWarning() bool {
	switch a {
	case ActionBlockedIdentityAccess, ActionAccountLocked, ActionIPBlocked,
		ActionCSRFAttack, ActionStorageUnavailable:
		return true
	default:
		return false
	}
}
