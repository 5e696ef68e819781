package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"EscrowLane/internal/model"
)

// Clock supplies the logical time for window rollover and cooldown checks.
// It is read once per call; tests inject a fixed or stepping implementation.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NewSystemClock provides the production clock for dependency injection.
func NewSystemClock() SystemClock { return SystemClock{} }

// AuthService verifies request signatures against per-signer secrets.
type AuthService interface {
	// VerifySignature checks an HMAC signature over the canonical request
	// payload. It returns an error for unknown signers or bad signatures.
	VerifySignature(ctx context.Context, signer string, payload []byte, signature string) error
}

// TransferService moves value out of custody. It is invoked inside the
// payout transaction; an error rolls back the ledger mutation.
type TransferService interface {
	Transfer(ctx context.Context, programID, recipient string, amount int64) error
}

// EventBus publishes domain events to external consumers. Publication is
// best-effort; failures are logged and never fail the operation.
type EventBus interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// AuditLogger records an immutable audit trail of fund movements and
// breaker transitions. Implementations write asynchronously.
type AuditLogger interface {
	LogProgramInitialized(ctx context.Context, programID, authorizedSigner string)
	LogFundsLocked(ctx context.Context, programID, bountyID string, amount, total, remaining int64)
	LogPayoutExecuted(ctx context.Context, programID, recipient string, amount int64, bountyID string, nonce uint64)
	LogThresholdBreached(ctx context.Context, breach *model.ThresholdBreach, cooldownEnd time.Time)
	LogThresholdConfigured(ctx context.Context, cfg *model.ThresholdConfig)
}

// PayoutPayload builds the canonical byte string signed for a single payout
// or bounty release. Field order is part of the wire contract.
func PayoutPayload(programID, recipient string, amount int64, nonce uint64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%d", programID, recipient, amount, nonce))
}

// BatchPayoutPayload builds the canonical byte string signed for a batch
// payout. Recipients and amounts are joined pairwise in submission order.
func BatchPayoutPayload(programID string, recipients []string, amounts []int64, nonce uint64) []byte {
	var b strings.Builder
	b.WriteString(programID)
	for i := range recipients {
		b.WriteString("|")
		b.WriteString(recipients[i])
		if i < len(amounts) {
			fmt.Fprintf(&b, ":%d", amounts[i])
		}
	}
	fmt.Fprintf(&b, "|%d", nonce)
	return []byte(b.String())
}

// ReleasePayload builds the canonical byte string signed for a bounty
// release. The amount is the bucket's, so it is not part of the payload.
func ReleasePayload(programID, bountyID, recipient string, nonce uint64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%d", programID, bountyID, recipient, nonce))
}
