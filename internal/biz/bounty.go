package biz

import (
	"context"

	"EscrowLane/internal/model"
	"EscrowLane/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// BountyRepo persists bounty buckets.
type BountyRepo interface {
	// CreateBounty inserts the bucket and adds its amount to the
	// program's total and remaining funds in one transaction. A
	// duplicate (program_id, bounty_id) returns ErrInvalidStatus.
	CreateBounty(ctx context.Context, b *model.BountyLock) (*model.EscrowProgram, error)

	// GetBounty returns the bucket or ErrInvalidStatus when absent.
	GetBounty(ctx context.Context, programID, bountyID string) (*model.BountyLock, error)

	// ReleaseBounty flips the bucket to released, decrements the program
	// balance, appends the payout record, and invokes transfer before
	// commit. The status flip is guarded (WHERE status = locked) so
	// concurrent releases cannot double-pay. Returns the remaining
	// balance after commit.
	ReleaseBounty(ctx context.Context, b *model.BountyLock, recipient string, record *model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error)
}

// BountyUsecase manages named locked buckets. ReleaseFunds walks the same
// gate order as a single payout, with the bucket status check strictly after
// the nonce check: a replayed release must fail on the nonce, not on status.
type BountyUsecase struct {
	repo     BountyRepo
	programs EscrowRepo
	nonces   *NonceRegistry
	monitor  *ThresholdMonitor
	auth     AuthService
	transfer TransferService
	events   EventBus
	audit    AuditLogger
	logger   *log.Helper
}

// NewBountyUsecase creates the bounty use case.
func NewBountyUsecase(
	repo BountyRepo,
	programs EscrowRepo,
	nonces *NonceRegistry,
	monitor *ThresholdMonitor,
	auth AuthService,
	transfer TransferService,
	events EventBus,
	audit AuditLogger,
	logger log.Logger,
) *BountyUsecase {
	return &BountyUsecase{
		repo:     repo,
		programs: programs,
		nonces:   nonces,
		monitor:  monitor,
		auth:     auth,
		transfer: transfer,
		events:   events,
		audit:    audit,
		logger:   log.NewHelper(logger),
	}
}

// LockBounty creates a locked bucket and adds its amount to the program's
// funds. No nonce is consumed.
func (uc *BountyUsecase) LockBounty(ctx context.Context, programID, bountyID string, amount int64) (*model.BountyLock, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount(amount)
	}
	if bountyID == "" {
		return nil, ErrInvalidArgument("bounty_id is required")
	}
	if _, err := uc.programs.GetProgram(ctx, programID); err != nil {
		return nil, err
	}

	b := &model.BountyLock{
		ProgramID: programID,
		BountyID:  bountyID,
		Amount:    amount,
		Status:    model.BountyStatusLocked,
	}
	p, err := uc.repo.CreateBounty(ctx, b)
	if err != nil {
		return nil, err
	}

	metrics.FundsLocked.WithLabelValues(programID).Add(float64(amount))
	uc.audit.LogFundsLocked(ctx, programID, bountyID, amount, p.TotalFunds, p.RemainingBalance)
	uc.publish(ctx, model.AuditEventBountyLocked, model.FundsLockedEvent{
		ProgramID: programID,
		BountyID:  bountyID,
		Amount:    amount,
		Total:     p.TotalFunds,
		Remaining: p.RemainingBalance,
		LockedAt:  b.CreatedAt,
	})
	uc.logger.Infow("bounty locked",
		"program_id", programID,
		"bounty_id", bountyID,
		"amount", amount)
	return b, nil
}

// ReleaseFunds pays the full bucket amount to recipient. Contract identical
// to SinglePayout scoped to the bucket: signature, nonce, threshold
// admission, then the status check, then the transactional mutation.
func (uc *BountyUsecase) ReleaseFunds(ctx context.Context, programID, bountyID, signer, recipient string, nonce uint64, signature string) (amount int64, remaining int64, nextNonce uint64, err error) {
	if err := uc.authenticate(ctx, programID, signer, ReleasePayload(programID, bountyID, recipient, nonce), signature); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "auth").Inc()
		return 0, 0, 0, err
	}

	nextNonce, err = uc.nonces.ValidateAndIncrement(ctx, signer, nonce)
	if err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "nonce").Inc()
		return 0, 0, 0, err
	}

	// An open cooldown rejects before the bucket is even read: a missing
	// bucket must not surface as InvalidStatus, nor count as a failure,
	// while the breaker is open.
	if err := uc.monitor.CheckCooldown(ctx); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "threshold").Inc()
		return 0, 0, nextNonce, err
	}

	// The bucket must be loaded before the cap check for its amount, but
	// the status verdict waits until after the breaker has had its say.
	b, err := uc.repo.GetBounty(ctx, programID, bountyID)
	if err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "business").Inc()
		if rerr := uc.monitor.RecordFailure(ctx); rerr != nil {
			uc.logger.Errorw("failure recording failed", "error", rerr)
		}
		return 0, 0, nextNonce, err
	}

	if err := uc.monitor.Admit(ctx, b.Amount); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "threshold").Inc()
		return 0, 0, nextNonce, err
	}

	remaining, err = uc.executeRelease(ctx, b, recipient)
	if err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "business").Inc()
		if rerr := uc.monitor.RecordFailure(ctx); rerr != nil {
			uc.logger.Errorw("failure recording failed", "error", rerr)
		}
		return 0, 0, nextNonce, err
	}

	if rerr := uc.monitor.RecordSuccess(ctx, b.Amount); rerr != nil {
		uc.logger.Errorw("success recording failed", "error", rerr)
	}
	metrics.PayoutsExecuted.WithLabelValues(programID, "bounty").Inc()
	metrics.OutflowVolume.WithLabelValues(programID).Add(float64(b.Amount))

	uc.audit.LogPayoutExecuted(ctx, programID, recipient, b.Amount, bountyID, nonce)
	uc.publish(ctx, model.AuditEventBountyReleased, model.PayoutExecutedEvent{
		ProgramID:  programID,
		Recipient:  recipient,
		Amount:     b.Amount,
		BountyID:   bountyID,
		Nonce:      nonce,
		Remaining:  remaining,
		ExecutedAt: uc.monitor.clock.Now(),
	})
	uc.logger.Infow("bounty released",
		"program_id", programID,
		"bounty_id", bountyID,
		"recipient", recipient,
		"amount", b.Amount,
		"nonce", nonce)
	return b.Amount, remaining, nextNonce, nil
}

func (uc *BountyUsecase) executeRelease(ctx context.Context, b *model.BountyLock, recipient string) (int64, error) {
	if b.Status != model.BountyStatusLocked {
		return 0, ErrInvalidStatus(b.ProgramID, b.BountyID, b.Status)
	}

	p, err := uc.programs.GetProgram(ctx, b.ProgramID)
	if err != nil {
		return 0, err
	}
	if p.RemainingBalance < b.Amount {
		return 0, ErrInsufficientBalance(b.Amount, p.RemainingBalance)
	}

	record := &model.PayoutRecord{
		ProgramID: b.ProgramID,
		Recipient: recipient,
		Amount:    b.Amount,
		BountyID:  b.BountyID,
	}
	return uc.repo.ReleaseBounty(ctx, b, recipient, record, func(ctx context.Context) error {
		return uc.transfer.Transfer(ctx, b.ProgramID, recipient, b.Amount)
	})
}

// GetBounty returns the bucket. Read-only.
func (uc *BountyUsecase) GetBounty(ctx context.Context, programID, bountyID string) (*model.BountyLock, error) {
	return uc.repo.GetBounty(ctx, programID, bountyID)
}

func (uc *BountyUsecase) authenticate(ctx context.Context, programID, signer string, payload []byte, signature string) error {
	if err := uc.auth.VerifySignature(ctx, signer, payload, signature); err != nil {
		uc.logger.Warnw("signature verification failed",
			"program_id", programID,
			"signer", signer,
			"error", err)
		return ErrUnauthorizedSigner(signer)
	}
	p, err := uc.programs.GetProgram(ctx, programID)
	if err != nil {
		return err
	}
	if p.AuthorizedSigner != signer {
		uc.logger.Warnw("signer not authorized for program",
			"program_id", programID,
			"signer", signer)
		return ErrUnauthorizedSigner(signer)
	}
	return nil
}

func (uc *BountyUsecase) publish(ctx context.Context, eventType string, payload interface{}) {
	if err := uc.events.Publish(ctx, eventType, payload); err != nil {
		uc.logger.Warnw("event publish failed", "event_type", eventType, "error", err)
	}
}
