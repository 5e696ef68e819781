package model

import "time"

// Bounty status values. A bucket flips from locked to released exactly once.
const (
	BountyStatusLocked   = "locked"
	BountyStatusReleased = "released"
)

// EscrowProgram is the ledger for one custody pool. TotalFunds only ever
// grows; RemainingBalance stays within [0, TotalFunds].
type EscrowProgram struct {
	ID               int64
	ProgramID        string
	AuthorizedSigner string
	TotalFunds       int64
	RemainingBalance int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PayoutRecord is one append-only history line. BountyID is empty for plain
// payouts and set for bounty releases.
type PayoutRecord struct {
	ID        int64
	ProgramID string
	Recipient string
	Amount    int64
	BountyID  string
	CreatedAt time.Time
}

// BountyLock is a named locked bucket under a program. Its amount is part of
// the program's funds until released; release always pays the full amount.
type BountyLock struct {
	ID         int64
	ProgramID  string
	BountyID   string
	Amount     int64
	Status     string
	ReleasedTo string
	ReleasedAt *time.Time
	CreatedAt  time.Time
}
