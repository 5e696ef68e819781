package biz

import (
	"context"
	"os"
	"time"

	"EscrowLane/internal/conf"
	"EscrowLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/mock"
)

// fakeClock is a settable Clock for deterministic window and cooldown tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// MockNonceRepo is a mock implementation of NonceRepo for testing.
type MockNonceRepo struct {
	mock.Mock
}

func (m *MockNonceRepo) CurrentNonce(ctx context.Context, signer string) (uint64, error) {
	args := m.Called(ctx, signer)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockNonceRepo) ConsumeNonce(ctx context.Context, signer string, expected uint64) (uint64, bool, error) {
	args := m.Called(ctx, signer, expected)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

// MockEscrowRepo is a mock implementation of EscrowRepo for testing.
type MockEscrowRepo struct {
	mock.Mock
}

func (m *MockEscrowRepo) CreateProgram(ctx context.Context, p *model.EscrowProgram) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockEscrowRepo) GetProgram(ctx context.Context, programID string) (*model.EscrowProgram, error) {
	args := m.Called(ctx, programID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EscrowProgram), args.Error(1)
}

func (m *MockEscrowRepo) AddFunds(ctx context.Context, programID string, amount int64) (*model.EscrowProgram, error) {
	args := m.Called(ctx, programID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EscrowProgram), args.Error(1)
}

// ExecutePayout invokes transfer after the mocked ledger mutation succeeds,
// mirroring the transactional ordering of the real repository.
func (m *MockEscrowRepo) ExecutePayout(ctx context.Context, programID string, total int64, records []*model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error) {
	args := m.Called(ctx, programID, total, records)
	if args.Error(1) != nil {
		return 0, args.Error(1)
	}
	if err := transfer(ctx); err != nil {
		return 0, err
	}
	return args.Get(0).(int64), nil
}

// MockBountyRepo is a mock implementation of BountyRepo for testing.
type MockBountyRepo struct {
	mock.Mock
}

func (m *MockBountyRepo) CreateBounty(ctx context.Context, b *model.BountyLock) (*model.EscrowProgram, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EscrowProgram), args.Error(1)
}

func (m *MockBountyRepo) GetBounty(ctx context.Context, programID, bountyID string) (*model.BountyLock, error) {
	args := m.Called(ctx, programID, bountyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BountyLock), args.Error(1)
}

func (m *MockBountyRepo) ReleaseBounty(ctx context.Context, b *model.BountyLock, recipient string, record *model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error) {
	args := m.Called(ctx, b, recipient, record)
	if args.Error(1) != nil {
		return 0, args.Error(1)
	}
	if err := transfer(ctx); err != nil {
		return 0, err
	}
	return args.Get(0).(int64), nil
}

// fakeThresholdRepo is an in-memory ThresholdRepo. The Redis fast path is
// disabled unless fastPath is set, so monitor tests exercise the persisted
// state by default.
type fakeThresholdRepo struct {
	state    *model.ThresholdState
	saves    int
	fastPath bool
	cooldown time.Time
}

func (f *fakeThresholdRepo) LoadState(ctx context.Context) (*model.ThresholdState, error) {
	if f.state == nil {
		return nil, nil
	}
	cp := *f.state
	return &cp, nil
}

func (f *fakeThresholdRepo) SaveState(ctx context.Context, s *model.ThresholdState) error {
	cp := *s
	f.state = &cp
	f.saves++
	return nil
}

func (f *fakeThresholdRepo) MarkCooldown(ctx context.Context, until time.Time) error {
	f.cooldown = until
	return nil
}

func (f *fakeThresholdRepo) CooldownUntil(ctx context.Context) (time.Time, bool, error) {
	if !f.fastPath || f.cooldown.IsZero() {
		return time.Time{}, false, nil
	}
	return f.cooldown, true, nil
}

// stubAuth verifies every signature unless err is set.
type stubAuth struct {
	err error
}

func (s stubAuth) VerifySignature(ctx context.Context, signer string, payload []byte, signature string) error {
	return s.err
}

type transferCall struct {
	programID string
	recipient string
	amount    int64
}

// stubTransfer records settlement calls and fails when err is set.
type stubTransfer struct {
	err   error
	calls []transferCall
}

func (s *stubTransfer) Transfer(ctx context.Context, programID, recipient string, amount int64) error {
	s.calls = append(s.calls, transferCall{programID, recipient, amount})
	return s.err
}

// stubEvents records published event types.
type stubEvents struct {
	published []string
}

func (s *stubEvents) Publish(ctx context.Context, eventType string, payload interface{}) error {
	s.published = append(s.published, eventType)
	return nil
}

// nopAudit discards audit events.
type nopAudit struct{}

func (nopAudit) LogProgramInitialized(ctx context.Context, programID, authorizedSigner string) {}
func (nopAudit) LogFundsLocked(ctx context.Context, programID, bountyID string, amount, total, remaining int64) {
}
func (nopAudit) LogPayoutExecuted(ctx context.Context, programID, recipient string, amount int64, bountyID string, nonce uint64) {
}
func (nopAudit) LogThresholdBreached(ctx context.Context, breach *model.ThresholdBreach, cooldownEnd time.Time) {
}
func (nopAudit) LogThresholdConfigured(ctx context.Context, cfg *model.ThresholdConfig) {}

func testLogger() log.Logger {
	return log.NewStdLogger(os.Stdout)
}

// testThresholds is a permissive bootstrap config used by monitor and
// usecase tests.
func testThresholds() *conf.Thresholds {
	return &conf.Thresholds{
		FailureRateThreshold:   3,
		OutflowVolumeThreshold: 1000,
		MaxSinglePayout:        500,
		TimeWindowSecs:         60,
		CooldownPeriodSecs:     60,
		CooldownMultiplier:     2,
	}
}

func newTestMonitor(repo *fakeThresholdRepo, clock *fakeClock) *ThresholdMonitor {
	return NewThresholdMonitor(repo, clock, &stubEvents{}, nopAudit{}, testThresholds(), testLogger())
}
