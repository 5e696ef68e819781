package model

import "time"

// Audit event type constants
const (
	AuditEventProgramInitialized = "PROGRAM_INITIALIZED"
	AuditEventFundsLocked        = "FUNDS_LOCKED"
	AuditEventPayoutExecuted     = "PAYOUT_EXECUTED"
	AuditEventBatchPayout        = "BATCH_PAYOUT"
	AuditEventBountyLocked       = "BOUNTY_LOCKED"
	AuditEventBountyReleased     = "BOUNTY_RELEASED"
	AuditEventThresholdBreached  = "THRESHOLD_BREACHED"
	AuditEventCooldownStarted    = "COOLDOWN_STARTED"
	AuditEventThresholdConfigSet = "THRESHOLD_CONFIG_SET"
	AuditEventWindowSnapshot     = "WINDOW_SNAPSHOT"
)

// ProgramInitializedEvent represents an escrow program creation event
type ProgramInitializedEvent struct {
	ProgramID        string
	AuthorizedSigner string
	InitializedAt    time.Time
}

// FundsLockedEvent represents funds being locked into a program
type FundsLockedEvent struct {
	ProgramID string
	BountyID  string // empty for program-level locks
	Amount    int64
	Total     int64
	Remaining int64
	LockedAt  time.Time
}

// PayoutExecutedEvent represents a completed single or batch payout line item
type PayoutExecutedEvent struct {
	ProgramID  string
	Recipient  string
	Amount     int64
	BountyID   string // empty unless a bounty release
	Nonce      uint64
	Remaining  int64
	ExecutedAt time.Time
}

// ThresholdBreachedEvent represents a circuit breaker trip
type ThresholdBreachedEvent struct {
	Metric      string
	Threshold   int64
	Actual      int64
	BreachCount uint32
	CooldownEnd time.Time
	BreachedAt  time.Time
}
