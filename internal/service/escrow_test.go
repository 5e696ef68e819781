package service

import (
	"context"
	"os"
	"testing"
	"time"

	v1 "EscrowLane/api/v1"
	"EscrowLane/internal/biz"
	"EscrowLane/internal/conf"
	"EscrowLane/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory fakes: the service tests exercise the full usecase stack
// against fake storage, so the DTO conversion is verified end to end.

type memNonceRepo struct {
	counters map[string]uint64
}

func (m *memNonceRepo) CurrentNonce(ctx context.Context, signer string) (uint64, error) {
	return m.counters[signer], nil
}

func (m *memNonceRepo) ConsumeNonce(ctx context.Context, signer string, expected uint64) (uint64, bool, error) {
	current := m.counters[signer]
	if current != expected {
		return current, false, nil
	}
	m.counters[signer] = current + 1
	return current + 1, true, nil
}

type memEscrowRepo struct {
	programs map[string]*model.EscrowProgram
	payouts  []*model.PayoutRecord
}

func (m *memEscrowRepo) CreateProgram(ctx context.Context, p *model.EscrowProgram) error {
	if _, ok := m.programs[p.ProgramID]; ok {
		return biz.ErrAlreadyInitialized(p.ProgramID)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.programs[p.ProgramID] = &cp
	return nil
}

func (m *memEscrowRepo) GetProgram(ctx context.Context, programID string) (*model.EscrowProgram, error) {
	p, ok := m.programs[programID]
	if !ok {
		return nil, biz.ErrNotInitialized(programID)
	}
	cp := *p
	return &cp, nil
}

func (m *memEscrowRepo) AddFunds(ctx context.Context, programID string, amount int64) (*model.EscrowProgram, error) {
	p, ok := m.programs[programID]
	if !ok {
		return nil, biz.ErrNotInitialized(programID)
	}
	p.TotalFunds += amount
	p.RemainingBalance += amount
	cp := *p
	return &cp, nil
}

func (m *memEscrowRepo) ExecutePayout(ctx context.Context, programID string, total int64, records []*model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error) {
	p, ok := m.programs[programID]
	if !ok {
		return 0, biz.ErrNotInitialized(programID)
	}
	if p.RemainingBalance < total {
		return 0, biz.ErrInsufficientBalance(total, p.RemainingBalance)
	}
	if err := transfer(ctx); err != nil {
		return 0, err
	}
	p.RemainingBalance -= total
	m.payouts = append(m.payouts, records...)
	return p.RemainingBalance, nil
}

type memThresholdRepo struct {
	state *model.ThresholdState
}

func (m *memThresholdRepo) LoadState(ctx context.Context) (*model.ThresholdState, error) {
	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}

func (m *memThresholdRepo) SaveState(ctx context.Context, s *model.ThresholdState) error {
	cp := *s
	m.state = &cp
	return nil
}

func (m *memThresholdRepo) MarkCooldown(ctx context.Context, until time.Time) error { return nil }

func (m *memThresholdRepo) CooldownUntil(ctx context.Context) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

type allowAuth struct{}

func (allowAuth) VerifySignature(ctx context.Context, signer string, payload []byte, signature string) error {
	return nil
}

type nopTransfer struct{}

func (nopTransfer) Transfer(ctx context.Context, programID, recipient string, amount int64) error {
	return nil
}

type nopEvents struct{}

func (nopEvents) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return nil
}

type nopAudit struct{}

func (nopAudit) LogProgramInitialized(ctx context.Context, programID, authorizedSigner string) {}
func (nopAudit) LogFundsLocked(ctx context.Context, programID, bountyID string, amount, total, remaining int64) {
}
func (nopAudit) LogPayoutExecuted(ctx context.Context, programID, recipient string, amount int64, bountyID string, nonce uint64) {
}
func (nopAudit) LogThresholdBreached(ctx context.Context, breach *model.ThresholdBreach, cooldownEnd time.Time) {
}
func (nopAudit) LogThresholdConfigured(ctx context.Context, cfg *model.ThresholdConfig) {}

type memBountyRepo struct {
	bounties map[string]*model.BountyLock
	programs *memEscrowRepo
}

func (m *memBountyRepo) CreateBounty(ctx context.Context, b *model.BountyLock) (*model.EscrowProgram, error) {
	key := b.ProgramID + "/" + b.BountyID
	if _, ok := m.bounties[key]; ok {
		return nil, biz.ErrInvalidStatus(b.ProgramID, b.BountyID, "already exists")
	}
	b.CreatedAt = time.Now()
	cp := *b
	m.bounties[key] = &cp
	return m.programs.AddFunds(ctx, b.ProgramID, b.Amount)
}

func (m *memBountyRepo) GetBounty(ctx context.Context, programID, bountyID string) (*model.BountyLock, error) {
	b, ok := m.bounties[programID+"/"+bountyID]
	if !ok {
		return nil, biz.ErrInvalidStatus(programID, bountyID, "not found")
	}
	cp := *b
	return &cp, nil
}

func (m *memBountyRepo) ReleaseBounty(ctx context.Context, b *model.BountyLock, recipient string, record *model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error) {
	stored := m.bounties[b.ProgramID+"/"+b.BountyID]
	if stored == nil || stored.Status != model.BountyStatusLocked {
		return 0, biz.ErrInvalidStatus(b.ProgramID, b.BountyID, model.BountyStatusReleased)
	}
	if err := transfer(ctx); err != nil {
		return 0, err
	}
	now := time.Now()
	stored.Status = model.BountyStatusReleased
	stored.ReleasedTo = recipient
	stored.ReleasedAt = &now
	p := m.programs.programs[b.ProgramID]
	p.RemainingBalance -= b.Amount
	b.Status = model.BountyStatusReleased
	return p.RemainingBalance, nil
}

func newTestService(t *testing.T) *EscrowService {
	t.Helper()
	logger := log.NewStdLogger(os.Stdout)

	escrowRepo := &memEscrowRepo{programs: map[string]*model.EscrowProgram{}}
	bountyRepo := &memBountyRepo{bounties: map[string]*model.BountyLock{}, programs: escrowRepo}
	nonces := biz.NewNonceRegistry(&memNonceRepo{counters: map[string]uint64{}}, logger)
	monitor := biz.NewThresholdMonitor(&memThresholdRepo{}, biz.NewSystemClock(), nopEvents{}, nopAudit{}, &conf.Thresholds{
		FailureRateThreshold:   10,
		OutflowVolumeThreshold: 1_000_000,
		MaxSinglePayout:        100_000,
		TimeWindowSecs:         600,
		CooldownPeriodSecs:     300,
		CooldownMultiplier:     2,
	}, logger)

	escrow := biz.NewEscrowUsecase(escrowRepo, nonces, monitor, allowAuth{}, nopTransfer{}, nopEvents{}, nopAudit{}, logger)
	bounty := biz.NewBountyUsecase(bountyRepo, escrowRepo, nonces, monitor, allowAuth{}, nopTransfer{}, nopEvents{}, nopAudit{}, logger)

	return NewEscrowService(escrow, bounty, nonces, monitor, logger)
}

// Test the program lifecycle end to end through the DTO layer
func TestEscrowService_ProgramLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	initReply, err := s.InitProgram(ctx, &v1.InitProgramRequest{
		ProgramId:        "prog-1",
		AuthorizedSigner: "GSIGNER",
	})
	require.NoError(t, err)
	assert.Equal(t, "prog-1", initReply.Program.ProgramId)
	assert.Equal(t, int64(0), initReply.Program.TotalFunds)

	lockReply, err := s.LockFunds(ctx, &v1.LockFundsRequest{ProgramId: "prog-1", Amount: 10_000})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), lockReply.TotalFunds)
	assert.Equal(t, int64(10_000), lockReply.RemainingBalance)

	balReply, err := s.GetBalance(ctx, &v1.GetBalanceRequest{ProgramId: "prog-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), balReply.RemainingBalance)

	infoReply, err := s.GetProgramInfo(ctx, &v1.GetProgramInfoRequest{ProgramId: "prog-1"})
	require.NoError(t, err)
	assert.Equal(t, "GSIGNER", infoReply.Program.AuthorizedSigner)
}

// Test the payout path - nonce advances and the reply carries both values
func TestEscrowService_SinglePayout(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.InitProgram(ctx, &v1.InitProgramRequest{ProgramId: "prog-1", AuthorizedSigner: "GSIGNER"})
	require.NoError(t, err)
	_, err = s.LockFunds(ctx, &v1.LockFundsRequest{ProgramId: "prog-1", Amount: 10_000})
	require.NoError(t, err)

	reply, err := s.SinglePayout(ctx, &v1.SinglePayoutRequest{
		ProgramId: "prog-1",
		Signer:    "GSIGNER",
		Recipient: "GRECIPIENT",
		Amount:    1_500,
		Nonce:     0,
		Signature: "sig",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8_500), reply.RemainingBalance)
	assert.Equal(t, uint64(1), reply.NextNonce)

	nonceReply, err := s.GetNonce(ctx, &v1.GetNonceRequest{Signer: "GSIGNER"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonceReply.Nonce)

	// Replaying the consumed nonce is refused.
	_, err = s.SinglePayout(ctx, &v1.SinglePayoutRequest{
		ProgramId: "prog-1",
		Signer:    "GSIGNER",
		Recipient: "GRECIPIENT",
		Amount:    1_500,
		Nonce:     0,
		Signature: "sig",
	})
	assert.True(t, biz.IsInvalidNonce(err))
}

// Test the bounty path - lock then release through the DTO layer
func TestEscrowService_BountyLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.InitProgram(ctx, &v1.InitProgramRequest{ProgramId: "prog-1", AuthorizedSigner: "GSIGNER"})
	require.NoError(t, err)

	lockReply, err := s.LockBounty(ctx, &v1.LockBountyRequest{
		ProgramId: "prog-1",
		BountyId:  "bounty-7",
		Amount:    2_000,
	})
	require.NoError(t, err)
	assert.Equal(t, "locked", lockReply.Bounty.Status)
	assert.Equal(t, int64(2_000), lockReply.Bounty.Amount)

	relReply, err := s.ReleaseFunds(ctx, &v1.ReleaseFundsRequest{
		ProgramId: "prog-1",
		BountyId:  "bounty-7",
		Signer:    "GSIGNER",
		Recipient: "GRECIPIENT",
		Nonce:     0,
		Signature: "sig",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), relReply.Amount)
	assert.Equal(t, int64(0), relReply.RemainingBalance)
	assert.Equal(t, uint64(1), relReply.NextNonce)

	// A second release fails on the nonce first, then on status.
	_, err = s.ReleaseFunds(ctx, &v1.ReleaseFundsRequest{
		ProgramId: "prog-1",
		BountyId:  "bounty-7",
		Signer:    "GSIGNER",
		Recipient: "GRECIPIENT",
		Nonce:     0,
		Signature: "sig",
	})
	assert.True(t, biz.IsInvalidNonce(err))

	_, err = s.ReleaseFunds(ctx, &v1.ReleaseFundsRequest{
		ProgramId: "prog-1",
		BountyId:  "bounty-7",
		Signer:    "GSIGNER",
		Recipient: "GRECIPIENT",
		Nonce:     1,
		Signature: "sig",
	})
	assert.Equal(t, biz.ReasonInvalidStatus, kerrors.Reason(err))
}

// Test threshold configuration and the metrics snapshot
func TestEscrowService_Thresholds(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	cfgReply, err := s.ConfigureThresholds(ctx, &v1.ConfigureThresholdsRequest{
		FailureRateThreshold:   5,
		OutflowVolumeThreshold: 50_000,
		MaxSinglePayout:        10_000,
		TimeWindowSecs:         300,
		CooldownPeriodSecs:     120,
		CooldownMultiplier:     2,
	})
	require.NoError(t, err)
	assert.True(t, cfgReply.Success)

	_, err = s.ConfigureThresholds(ctx, &v1.ConfigureThresholdsRequest{
		FailureRateThreshold:   0,
		OutflowVolumeThreshold: 50_000,
		MaxSinglePayout:        10_000,
		TimeWindowSecs:         300,
		CooldownPeriodSecs:     120,
		CooldownMultiplier:     2,
	})
	assert.Equal(t, "INVALID_THRESHOLD_CONFIG", kerrors.Reason(err))

	metricsReply, err := s.GetWindowMetrics(ctx, &v1.GetWindowMetricsRequest{})
	require.NoError(t, err)
	assert.False(t, metricsReply.CooldownActive)
	assert.NotNil(t, metricsReply.CurrentWindow)
}
