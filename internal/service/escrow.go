package service

import (
	"context"

	v1 "EscrowLane/api/v1"
	"EscrowLane/internal/biz"
	"EscrowLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// EscrowService implements v1.EscrowServiceHTTPServer. It converts between
// wire DTOs and domain types; every decision lives in the usecases.
type EscrowService struct {
	escrow  *biz.EscrowUsecase
	bounty  *biz.BountyUsecase
	nonces  *biz.NonceRegistry
	monitor *biz.ThresholdMonitor
	logger  *log.Helper
}

// NewEscrowService creates a new EscrowService instance.
func NewEscrowService(
	escrow *biz.EscrowUsecase,
	bounty *biz.BountyUsecase,
	nonces *biz.NonceRegistry,
	monitor *biz.ThresholdMonitor,
	logger log.Logger,
) *EscrowService {
	return &EscrowService{
		escrow:  escrow,
		bounty:  bounty,
		nonces:  nonces,
		monitor: monitor,
		logger:  log.NewHelper(logger),
	}
}

// InitProgram creates a new escrow program.
func (s *EscrowService) InitProgram(ctx context.Context, req *v1.InitProgramRequest) (*v1.InitProgramReply, error) {
	s.logger.Infow("InitProgram called", "program_id", req.ProgramId)

	p, err := s.escrow.InitProgram(ctx, req.ProgramId, req.AuthorizedSigner)
	if err != nil {
		return nil, err
	}
	return &v1.InitProgramReply{Program: toWireProgram(p)}, nil
}

// LockFunds adds funds to a program's pool.
func (s *EscrowService) LockFunds(ctx context.Context, req *v1.LockFundsRequest) (*v1.LockFundsReply, error) {
	s.logger.Infow("LockFunds called", "program_id", req.ProgramId, "amount", req.Amount)

	p, err := s.escrow.LockFunds(ctx, req.ProgramId, req.Amount)
	if err != nil {
		return nil, err
	}
	return &v1.LockFundsReply{
		TotalFunds:       p.TotalFunds,
		RemainingBalance: p.RemainingBalance,
	}, nil
}

// SinglePayout executes one authorized payout.
func (s *EscrowService) SinglePayout(ctx context.Context, req *v1.SinglePayoutRequest) (*v1.SinglePayoutReply, error) {
	remaining, nextNonce, err := s.escrow.SinglePayout(ctx,
		req.ProgramId, req.Signer, req.Recipient, req.Amount, req.Nonce, req.Signature)
	if err != nil {
		return nil, err
	}
	return &v1.SinglePayoutReply{
		RemainingBalance: remaining,
		NextNonce:        nextNonce,
	}, nil
}

// BatchPayout executes several payouts under one nonce.
func (s *EscrowService) BatchPayout(ctx context.Context, req *v1.BatchPayoutRequest) (*v1.BatchPayoutReply, error) {
	remaining, nextNonce, err := s.escrow.BatchPayout(ctx,
		req.ProgramId, req.Signer, req.Recipients, req.Amounts, req.Nonce, req.Signature)
	if err != nil {
		return nil, err
	}
	return &v1.BatchPayoutReply{
		RemainingBalance: remaining,
		NextNonce:        nextNonce,
		PayoutCount:      int32(len(req.Recipients)),
	}, nil
}

// LockBounty creates a named locked bucket under a program.
func (s *EscrowService) LockBounty(ctx context.Context, req *v1.LockBountyRequest) (*v1.LockBountyReply, error) {
	s.logger.Infow("LockBounty called", "program_id", req.ProgramId, "bounty_id", req.BountyId)

	b, err := s.bounty.LockBounty(ctx, req.ProgramId, req.BountyId, req.Amount)
	if err != nil {
		return nil, err
	}
	return &v1.LockBountyReply{Bounty: toWireBounty(b)}, nil
}

// ReleaseFunds releases a locked bounty bucket to a recipient.
func (s *EscrowService) ReleaseFunds(ctx context.Context, req *v1.ReleaseFundsRequest) (*v1.ReleaseFundsReply, error) {
	amount, remaining, nextNonce, err := s.bounty.ReleaseFunds(ctx,
		req.ProgramId, req.BountyId, req.Signer, req.Recipient, req.Nonce, req.Signature)
	if err != nil {
		return nil, err
	}
	return &v1.ReleaseFundsReply{
		Amount:           amount,
		RemainingBalance: remaining,
		NextNonce:        nextNonce,
	}, nil
}

// GetProgramInfo returns the program ledger.
func (s *EscrowService) GetProgramInfo(ctx context.Context, req *v1.GetProgramInfoRequest) (*v1.GetProgramInfoReply, error) {
	p, err := s.escrow.GetProgramInfo(ctx, req.ProgramId)
	if err != nil {
		return nil, err
	}
	return &v1.GetProgramInfoReply{Program: toWireProgram(p)}, nil
}

// GetBalance returns the spendable balance.
func (s *EscrowService) GetBalance(ctx context.Context, req *v1.GetBalanceRequest) (*v1.GetBalanceReply, error) {
	remaining, err := s.escrow.GetRemainingBalance(ctx, req.ProgramId)
	if err != nil {
		return nil, err
	}
	return &v1.GetBalanceReply{RemainingBalance: remaining}, nil
}

// GetNonce returns the signer's expected next nonce.
func (s *EscrowService) GetNonce(ctx context.Context, req *v1.GetNonceRequest) (*v1.GetNonceReply, error) {
	nonce, err := s.nonces.CurrentNonce(ctx, req.Signer)
	if err != nil {
		return nil, err
	}
	return &v1.GetNonceReply{Signer: req.Signer, Nonce: nonce}, nil
}

// ConfigureThresholds replaces the circuit breaker configuration.
func (s *EscrowService) ConfigureThresholds(ctx context.Context, req *v1.ConfigureThresholdsRequest) (*v1.ConfigureThresholdsReply, error) {
	s.logger.Infow("ConfigureThresholds called")

	cfg := &model.ThresholdConfig{
		FailureRateThreshold:   req.FailureRateThreshold,
		OutflowVolumeThreshold: req.OutflowVolumeThreshold,
		MaxSinglePayout:        req.MaxSinglePayout,
		TimeWindowSecs:         req.TimeWindowSecs,
		CooldownPeriodSecs:     req.CooldownPeriodSecs,
		CooldownMultiplier:     req.CooldownMultiplier,
	}
	if err := s.monitor.Configure(ctx, cfg); err != nil {
		return nil, err
	}
	return &v1.ConfigureThresholdsReply{Success: true}, nil
}

// GetWindowMetrics returns a read-only snapshot of the circuit breaker.
func (s *EscrowService) GetWindowMetrics(ctx context.Context, req *v1.GetWindowMetricsRequest) (*v1.GetWindowMetricsReply, error) {
	cs, err := s.monitor.State(ctx)
	if err != nil {
		return nil, err
	}

	reply := &v1.GetWindowMetricsReply{
		CurrentWindow:  toWireWindow(&cs.CurrentWindow),
		PreviousWindow: toWireWindow(&cs.PreviousWindow),
		CooldownActive: cs.CooldownActive,
	}
	if cs.CooldownActive {
		reply.CooldownEnd = cs.CooldownEnd.Unix()
		reply.CooldownRemaining = int64(cs.CooldownRemaining.Seconds())
	}
	return reply, nil
}

func toWireProgram(p *model.EscrowProgram) *v1.Program {
	return &v1.Program{
		ProgramId:        p.ProgramID,
		AuthorizedSigner: p.AuthorizedSigner,
		TotalFunds:       p.TotalFunds,
		RemainingBalance: p.RemainingBalance,
		CreatedAt:        p.CreatedAt.Unix(),
		UpdatedAt:        p.UpdatedAt.Unix(),
	}
}

func toWireBounty(b *model.BountyLock) *v1.Bounty {
	w := &v1.Bounty{
		ProgramId:  b.ProgramID,
		BountyId:   b.BountyID,
		Amount:     b.Amount,
		Status:     b.Status,
		ReleasedTo: b.ReleasedTo,
	}
	if b.ReleasedAt != nil {
		w.ReleasedAt = b.ReleasedAt.Unix()
	}
	return w
}

func toWireWindow(wm *model.WindowMetrics) *v1.WindowMetrics {
	return &v1.WindowMetrics{
		WindowStart:      wm.WindowStart.Unix(),
		FailureCount:     wm.FailureCount,
		SuccessCount:     wm.SuccessCount,
		TotalOutflow:     wm.TotalOutflow,
		MaxSingleOutflow: wm.MaxSingleOutflow,
		BreachCount:      wm.BreachCount,
	}
}
