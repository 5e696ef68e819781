package biz

import (
	"context"
	"fmt"

	"EscrowLane/internal/model"
	"EscrowLane/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// EscrowRepo persists programs and payout history.
type EscrowRepo interface {
	// CreateProgram inserts a new zero-balance program. A duplicate
	// program_id returns ErrAlreadyInitialized.
	CreateProgram(ctx context.Context, p *model.EscrowProgram) error

	// GetProgram returns the program or ErrNotInitialized.
	GetProgram(ctx context.Context, programID string) (*model.EscrowProgram, error)

	// AddFunds atomically increases total and remaining by amount and
	// returns the updated program.
	AddFunds(ctx context.Context, programID string, amount int64) (*model.EscrowProgram, error)

	// ExecutePayout runs the ledger mutation in one transaction: the
	// balance is decremented by total with a remaining >= total guard,
	// one history row is appended per record, and transfer is invoked
	// before commit. A transfer error rolls back everything. Returns the
	// remaining balance after commit.
	ExecutePayout(ctx context.Context, programID string, total int64, records []*model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error)
}

// EscrowUsecase orchestrates program lifecycle and payouts. Every
// fund-moving call walks the same gates in a fixed order: signature, nonce,
// threshold admission, business invariants, mutation, outcome recording,
// audit. The ordering is part of the contract; replay rejection must win
// over balance errors and breaker rejections must win over business checks.
type EscrowUsecase struct {
	repo     EscrowRepo
	nonces   *NonceRegistry
	monitor  *ThresholdMonitor
	auth     AuthService
	transfer TransferService
	events   EventBus
	audit    AuditLogger
	logger   *log.Helper
}

// NewEscrowUsecase creates the escrow use case.
func NewEscrowUsecase(
	repo EscrowRepo,
	nonces *NonceRegistry,
	monitor *ThresholdMonitor,
	auth AuthService,
	transfer TransferService,
	events EventBus,
	audit AuditLogger,
	logger log.Logger,
) *EscrowUsecase {
	return &EscrowUsecase{
		repo:     repo,
		nonces:   nonces,
		monitor:  monitor,
		auth:     auth,
		transfer: transfer,
		events:   events,
		audit:    audit,
		logger:   log.NewHelper(logger),
	}
}

// InitProgram creates a zero-balance program bound to one authorized signer.
func (uc *EscrowUsecase) InitProgram(ctx context.Context, programID, authorizedSigner string) (*model.EscrowProgram, error) {
	if programID == "" || authorizedSigner == "" {
		return nil, ErrInvalidArgument("program_id and authorized_signer are required")
	}
	p := &model.EscrowProgram{
		ProgramID:        programID,
		AuthorizedSigner: authorizedSigner,
	}
	if err := uc.repo.CreateProgram(ctx, p); err != nil {
		return nil, err
	}

	uc.audit.LogProgramInitialized(ctx, programID, authorizedSigner)
	uc.publish(ctx, model.AuditEventProgramInitialized, model.ProgramInitializedEvent{
		ProgramID:        programID,
		AuthorizedSigner: authorizedSigner,
		InitializedAt:    p.CreatedAt,
	})
	uc.logger.Infow("program initialized",
		"program_id", programID,
		"authorized_signer", authorizedSigner)
	return p, nil
}

// LockFunds adds amount to the program's pool. No nonce is consumed; locking
// only ever increases custody.
func (uc *EscrowUsecase) LockFunds(ctx context.Context, programID string, amount int64) (*model.EscrowProgram, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount(amount)
	}
	p, err := uc.repo.AddFunds(ctx, programID, amount)
	if err != nil {
		return nil, err
	}

	metrics.FundsLocked.WithLabelValues(programID).Add(float64(amount))
	uc.audit.LogFundsLocked(ctx, programID, "", amount, p.TotalFunds, p.RemainingBalance)
	uc.publish(ctx, model.AuditEventFundsLocked, model.FundsLockedEvent{
		ProgramID: programID,
		Amount:    amount,
		Total:     p.TotalFunds,
		Remaining: p.RemainingBalance,
		LockedAt:  p.UpdatedAt,
	})
	uc.logger.Infow("funds locked",
		"program_id", programID,
		"amount", amount,
		"total", p.TotalFunds,
		"remaining", p.RemainingBalance)
	return p, nil
}

// SinglePayout executes one payout through the full gate sequence. The nonce
// is consumed once validation passes, regardless of how the rest of the call
// ends; a transfer failure rolls back the ledger but not the nonce.
func (uc *EscrowUsecase) SinglePayout(ctx context.Context, programID, signer, recipient string, amount int64, nonce uint64, signature string) (remaining int64, nextNonce uint64, err error) {
	if err := uc.authenticate(ctx, programID, signer, PayoutPayload(programID, recipient, amount, nonce), signature); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "auth").Inc()
		return 0, 0, err
	}

	nextNonce, err = uc.nonces.ValidateAndIncrement(ctx, signer, nonce)
	if err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "nonce").Inc()
		return 0, 0, err
	}

	if err := uc.monitor.Admit(ctx, amount); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "threshold").Inc()
		return 0, nextNonce, err
	}

	remaining, err = uc.executeSingle(ctx, programID, recipient, amount)
	if err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "business").Inc()
		if rerr := uc.monitor.RecordFailure(ctx); rerr != nil {
			uc.logger.Errorw("failure recording failed", "error", rerr)
		}
		return 0, nextNonce, err
	}

	if rerr := uc.monitor.RecordSuccess(ctx, amount); rerr != nil {
		uc.logger.Errorw("success recording failed", "error", rerr)
	}
	metrics.PayoutsExecuted.WithLabelValues(programID, "single").Inc()
	metrics.OutflowVolume.WithLabelValues(programID).Add(float64(amount))

	uc.audit.LogPayoutExecuted(ctx, programID, recipient, amount, "", nonce)
	uc.publish(ctx, model.AuditEventPayoutExecuted, model.PayoutExecutedEvent{
		ProgramID:  programID,
		Recipient:  recipient,
		Amount:     amount,
		Nonce:      nonce,
		Remaining:  remaining,
		ExecutedAt: uc.monitor.clock.Now(),
	})
	uc.logger.Infow("payout executed",
		"program_id", programID,
		"recipient", recipient,
		"amount", amount,
		"nonce", nonce,
		"remaining", remaining)
	return remaining, nextNonce, nil
}

// executeSingle runs the business checks and the transactional mutation for
// one payout. Errors here count as failures in the monitor window.
func (uc *EscrowUsecase) executeSingle(ctx context.Context, programID, recipient string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount(amount)
	}
	p, err := uc.repo.GetProgram(ctx, programID)
	if err != nil {
		return 0, err
	}
	if p.RemainingBalance < amount {
		return 0, ErrInsufficientBalance(amount, p.RemainingBalance)
	}

	record := &model.PayoutRecord{
		ProgramID: programID,
		Recipient: recipient,
		Amount:    amount,
	}
	return uc.repo.ExecutePayout(ctx, programID, amount, []*model.PayoutRecord{record}, func(ctx context.Context) error {
		return uc.transfer.Transfer(ctx, programID, recipient, amount)
	})
}

// BatchPayout executes several payouts under a single nonce. The batch is
// all-or-nothing: one balance decrement for the aggregate, one history row
// per line item, and every line item recorded in the monitor window.
func (uc *EscrowUsecase) BatchPayout(ctx context.Context, programID, signer string, recipients []string, amounts []int64, nonce uint64, signature string) (remaining int64, nextNonce uint64, err error) {
	if err := uc.authenticate(ctx, programID, signer, BatchPayoutPayload(programID, recipients, amounts, nonce), signature); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "auth").Inc()
		return 0, 0, err
	}

	nextNonce, err = uc.nonces.ValidateAndIncrement(ctx, signer, nonce)
	if err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "nonce").Inc()
		return 0, 0, err
	}

	// An open cooldown rejects before the shape check so a malformed batch
	// cannot add failures to the window while the breaker is open.
	if err := uc.monitor.CheckCooldown(ctx); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "threshold").Inc()
		return 0, nextNonce, err
	}

	if len(recipients) == 0 || len(recipients) != len(amounts) {
		metrics.PayoutsRejected.WithLabelValues(programID, "business").Inc()
		if rerr := uc.monitor.RecordFailure(ctx); rerr != nil {
			uc.logger.Errorw("failure recording failed", "error", rerr)
		}
		return 0, nextNonce, ErrBatchMismatch(len(recipients), len(amounts))
	}

	// Admission uses the largest line item: a batch may not smuggle an
	// oversized payout past the single-payout cap.
	var maxAmount int64
	for _, a := range amounts {
		if a > maxAmount {
			maxAmount = a
		}
	}
	if err := uc.monitor.Admit(ctx, maxAmount); err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "threshold").Inc()
		return 0, nextNonce, err
	}

	remaining, err = uc.executeBatch(ctx, programID, recipients, amounts)
	if err != nil {
		metrics.PayoutsRejected.WithLabelValues(programID, "business").Inc()
		if rerr := uc.monitor.RecordFailure(ctx); rerr != nil {
			uc.logger.Errorw("failure recording failed", "error", rerr)
		}
		return 0, nextNonce, err
	}

	if rerr := uc.monitor.RecordBatchSuccess(ctx, amounts); rerr != nil {
		uc.logger.Errorw("batch success recording failed", "error", rerr)
	}

	var total int64
	for i, a := range amounts {
		total += a
		metrics.PayoutsExecuted.WithLabelValues(programID, "batch").Inc()
		uc.audit.LogPayoutExecuted(ctx, programID, recipients[i], a, "", nonce)
	}
	metrics.OutflowVolume.WithLabelValues(programID).Add(float64(total))

	uc.publish(ctx, model.AuditEventBatchPayout, model.PayoutExecutedEvent{
		ProgramID:  programID,
		Recipient:  fmt.Sprintf("%d recipients", len(recipients)),
		Amount:     total,
		Nonce:      nonce,
		Remaining:  remaining,
		ExecutedAt: uc.monitor.clock.Now(),
	})
	uc.logger.Infow("batch payout executed",
		"program_id", programID,
		"count", len(recipients),
		"total", total,
		"nonce", nonce,
		"remaining", remaining)
	return remaining, nextNonce, nil
}

func (uc *EscrowUsecase) executeBatch(ctx context.Context, programID string, recipients []string, amounts []int64) (int64, error) {
	var total int64
	for _, a := range amounts {
		if a <= 0 {
			return 0, ErrInvalidAmount(a)
		}
		total += a
	}

	p, err := uc.repo.GetProgram(ctx, programID)
	if err != nil {
		return 0, err
	}
	if p.RemainingBalance < total {
		return 0, ErrInsufficientBalance(total, p.RemainingBalance)
	}

	records := make([]*model.PayoutRecord, len(recipients))
	for i := range recipients {
		records[i] = &model.PayoutRecord{
			ProgramID: programID,
			Recipient: recipients[i],
			Amount:    amounts[i],
		}
	}
	return uc.repo.ExecutePayout(ctx, programID, total, records, func(ctx context.Context) error {
		for i := range recipients {
			if err := uc.transfer.Transfer(ctx, programID, recipients[i], amounts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetProgramInfo returns the program ledger. Read-only.
func (uc *EscrowUsecase) GetProgramInfo(ctx context.Context, programID string) (*model.EscrowProgram, error) {
	return uc.repo.GetProgram(ctx, programID)
}

// GetRemainingBalance returns the spendable balance. Read-only.
func (uc *EscrowUsecase) GetRemainingBalance(ctx context.Context, programID string) (int64, error) {
	p, err := uc.repo.GetProgram(ctx, programID)
	if err != nil {
		return 0, err
	}
	return p.RemainingBalance, nil
}

// authenticate verifies the HMAC signature and that the signer is the
// program's authorized signer. Both failures surface as UnauthorizedSigner;
// an unknown program surfaces as NotInitialized before any nonce is touched.
func (uc *EscrowUsecase) authenticate(ctx context.Context, programID, signer string, payload []byte, signature string) error {
	if err := uc.auth.VerifySignature(ctx, signer, payload, signature); err != nil {
		uc.logger.Warnw("signature verification failed",
			"program_id", programID,
			"signer", signer,
			"error", err)
		return ErrUnauthorizedSigner(signer)
	}
	p, err := uc.repo.GetProgram(ctx, programID)
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

func (uc *EscrowUsecase) publish(ctx context.Context, eventType string, payload interface{}) {
	if err := uc.events.Publish(ctx, eventType, payload); err != nil {
		uc.logger.Warnw("event publish failed", "event_type", eventType, "error", err)
	}
}
