package biz

import (
	"context"

	"EscrowLane/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// NonceRepo persists per-signer monotonic counters. The stored nonce is the
// next value expected from the signer; a fresh signer starts at 0.
type NonceRepo interface {
	// CurrentNonce returns the signer's expected next nonce. Unknown
	// signers report 0 without creating a row.
	CurrentNonce(ctx context.Context, signer string) (uint64, error)

	// ConsumeNonce atomically increments the signer's counter if and only
	// if the stored value equals expected. It returns the new expected
	// nonce on success. On a mismatch it returns ok=false together with
	// the actual stored value; nothing is modified.
	ConsumeNonce(ctx context.Context, signer string, expected uint64) (next uint64, ok bool, err error)
}

// NonceRegistry implements per-signer strictly sequential replay protection.
// One counter per signer is shared across every entry point: a (signer,
// nonce) pair can be consumed at most once, values never skip and never
// decrease.
type NonceRegistry struct {
	repo   NonceRepo
	logger *log.Helper
}

// NewNonceRegistry creates a nonce registry use case.
func NewNonceRegistry(repo NonceRepo, logger log.Logger) *NonceRegistry {
	return &NonceRegistry{
		repo:   repo,
		logger: log.NewHelper(logger),
	}
}

// ValidateAndIncrement consumes one nonce for the signer. The submitted
// nonce must equal the signer's current counter; on success the counter
// advances by exactly 1 and the new expected value is returned.
//
// The increment commits independently of any downstream work: a payout that
// later fails a business check still leaves the nonce consumed. A failed
// validation commits nothing.
func (r *NonceRegistry) ValidateAndIncrement(ctx context.Context, signer string, nonce uint64) (uint64, error) {
	next, ok, err := r.repo.ConsumeNonce(ctx, signer, nonce)
	if err != nil {
		r.logger.Errorw("nonce consume failed",
			"signer", signer,
			"nonce", nonce,
			"error", err)
		return 0, err
	}
	if !ok {
		// next carries the stored counter on mismatch
		metrics.NonceRejections.WithLabelValues(signer).Inc()
		r.logger.Warnw("nonce rejected",
			"signer", signer,
			"expected", next,
			"got", nonce)
		return 0, ErrInvalidNonce(signer, next, nonce)
	}

	r.logger.Debugw("nonce consumed",
		"signer", signer,
		"nonce", nonce,
		"next", next)
	return next, nil
}

// CurrentNonce returns the signer's expected next nonce without side
// effects. Signers that have never transacted report 0.
func (r *NonceRegistry) CurrentNonce(ctx context.Context, signer string) (uint64, error) {
	return r.repo.CurrentNonce(ctx, signer)
}
