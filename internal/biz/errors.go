package biz

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons returned by the escrow core. Reasons are stable identifiers;
// messages are for humans and may change.
const (
	ReasonAlreadyInitialized     = "ALREADY_INITIALIZED"
	ReasonNotInitialized         = "NOT_INITIALIZED"
	ReasonInvalidAmount          = "INVALID_AMOUNT"
	ReasonInsufficientBalance    = "INSUFFICIENT_BALANCE"
	ReasonInvalidNonce           = "INVALID_NONCE"
	ReasonInvalidStatus          = "INVALID_STATUS"
	ReasonThresholdBreached      = "THRESHOLD_BREACHED"
	ReasonCooldownActive         = "COOLDOWN_ACTIVE"
	ReasonInvalidThresholdConfig = "INVALID_THRESHOLD_CONFIG"
	ReasonUnauthorizedSigner     = "UNAUTHORIZED_SIGNER"
	ReasonBatchMismatch          = "BATCH_MISMATCH"
	ReasonInvalidArgument        = "INVALID_ARGUMENT"
)

// ErrInvalidArgument is returned for malformed requests outside the
// domain-specific taxonomy, such as empty identifiers.
func ErrInvalidArgument(detail string) error {
	return errors.New(400, ReasonInvalidArgument, detail)
}

// ErrAlreadyInitialized is returned when creating a program that exists.
func ErrAlreadyInitialized(programID string) error {
	return errors.New(409, ReasonAlreadyInitialized,
		fmt.Sprintf("program %s is already initialized", programID))
}

// ErrNotInitialized is returned when operating on an unknown program.
func ErrNotInitialized(programID string) error {
	return errors.New(404, ReasonNotInitialized,
		fmt.Sprintf("program %s is not initialized", programID))
}

// ErrInvalidAmount is returned for zero or negative amounts.
func ErrInvalidAmount(amount int64) error {
	return errors.New(400, ReasonInvalidAmount,
		fmt.Sprintf("amount must be positive, got %d", amount))
}

// ErrInsufficientBalance is returned when a payout exceeds remaining funds.
func ErrInsufficientBalance(requested, remaining int64) error {
	return errors.New(422, ReasonInsufficientBalance,
		fmt.Sprintf("requested %d exceeds remaining balance %d", requested, remaining)).
		WithMetadata(map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"remaining": fmt.Sprintf("%d", remaining),
		})
}

// ErrInvalidNonce is returned when the submitted nonce does not equal the
// signer's expected next nonce. Metadata carries both values so clients can
// resynchronize without an extra read.
func ErrInvalidNonce(signer string, expected, got uint64) error {
	return errors.New(409, ReasonInvalidNonce,
		fmt.Sprintf("invalid nonce for signer %s: expected %d, got %d", signer, expected, got)).
		WithMetadata(map[string]string{
			"signer":   signer,
			"expected": fmt.Sprintf("%d", expected),
			"got":      fmt.Sprintf("%d", got),
		})
}

// ErrInvalidStatus is returned when a bounty bucket is missing or not in the
// state the operation requires.
func ErrInvalidStatus(programID, bountyID, status string) error {
	return errors.New(409, ReasonInvalidStatus,
		fmt.Sprintf("bounty %s in program %s has invalid status %q", bountyID, programID, status))
}

// ErrThresholdBreached is returned when an operation trips the circuit
// breaker. The operation is rejected and subsequent calls are refused until
// the cooldown expires.
func ErrThresholdBreached(metric string, threshold, actual int64) error {
	return errors.New(429, ReasonThresholdBreached,
		fmt.Sprintf("threshold breached: %s threshold=%d actual=%d", metric, threshold, actual)).
		WithMetadata(map[string]string{
			"metric":    metric,
			"threshold": fmt.Sprintf("%d", threshold),
			"actual":    fmt.Sprintf("%d", actual),
		})
}

// ErrCooldownActive is returned while the circuit breaker cooldown is open.
func ErrCooldownActive(until time.Time) error {
	return errors.New(429, ReasonCooldownActive,
		fmt.Sprintf("circuit breaker cooldown active until %s", until.UTC().Format(time.RFC3339))).
		WithMetadata(map[string]string{
			"until": fmt.Sprintf("%d", until.Unix()),
		})
}

// ErrInvalidThresholdConfig is returned when a threshold configuration field
// is out of its allowed range. The whole config is rejected.
func ErrInvalidThresholdConfig(field string, detail string) error {
	return errors.New(400, ReasonInvalidThresholdConfig,
		fmt.Sprintf("invalid threshold config: %s %s", field, detail))
}

// ErrUnauthorizedSigner is returned when signature verification fails or the
// signer is not authorized for the program.
func ErrUnauthorizedSigner(signer string) error {
	return errors.New(403, ReasonUnauthorizedSigner,
		fmt.Sprintf("signer %s is not authorized", signer))
}

// ErrBatchMismatch is returned when batch recipients and amounts differ in
// length or the batch is empty.
func ErrBatchMismatch(recipients, amounts int) error {
	return errors.New(400, ReasonBatchMismatch,
		fmt.Sprintf("batch mismatch: %d recipients, %d amounts", recipients, amounts))
}

// IsInvalidNonce reports whether err is a nonce validation failure.
func IsInvalidNonce(err error) bool {
	return errors.Reason(err) == ReasonInvalidNonce
}

// IsThresholdRejection reports whether err is a circuit breaker rejection,
// either an active cooldown or a fresh breach.
func IsThresholdRejection(err error) bool {
	r := errors.Reason(err)
	return r == ReasonThresholdBreached || r == ReasonCooldownActive
}

// IsNotInitialized reports whether err is an unknown-program failure.
func IsNotInitialized(err error) bool {
	return errors.Reason(err) == ReasonNotInitialized
}
