package models

// DenyReason explains a denied admission. It is for logs and operators only;
// clients always receive the same generic message.
type DenyReason string

const (
	DenyReasonNone               DenyReason = ""
	DenyReasonBlocked            DenyReason = "blocked"
	DenyReasonLocked             DenyReason = "locked"
	DenyReasonStorageUnavailable DenyReason = "storage_unavailable"
)

// Decision is the answer to an admission check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the admitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision carrying reason.
func Deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// DefenseState is the per-identity position in the lockout state machine.
type DefenseState string

const (
	StateClean             DefenseState = "clean"
	StateWarned            DefenseState = "warned"
	StateTemporarilyLocked DefenseState = "temporarily_locked"
	StateBlocked           DefenseState = "blocked"
)
