package biz

import (
	"context"
	"testing"
	"time"

	"EscrowLane/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type bountyFixture struct {
	uc        *BountyUsecase
	repo      *MockBountyRepo
	programs  *MockEscrowRepo
	nonceRepo *MockNonceRepo
	trepo     *fakeThresholdRepo
	clock     *fakeClock
	monitor   *ThresholdMonitor
	transfer  *stubTransfer
	events    *stubEvents
}

func newBountyFixture(auth stubAuth) *bountyFixture {
	f := &bountyFixture{
		repo:      new(MockBountyRepo),
		programs:  new(MockEscrowRepo),
		nonceRepo: new(MockNonceRepo),
		trepo:     &fakeThresholdRepo{},
		transfer:  &stubTransfer{},
		events:    &stubEvents{},
	}
	f.clock = &fakeClock{now: time.Unix(1_700_000_000, 0)}
	f.monitor = newTestMonitor(f.trepo, f.clock)
	nonces := NewNonceRegistry(f.nonceRepo, testLogger())
	f.uc = NewBountyUsecase(f.repo, f.programs, nonces, f.monitor, auth, f.transfer, f.events, nopAudit{}, testLogger())
	return f
}

func testBounty() *model.BountyLock {
	return &model.BountyLock{
		ID:        1,
		ProgramID: "prog-1",
		BountyID:  "bounty-7",
		Amount:    200,
		Status:    model.BountyStatusLocked,
	}
}

// Test LockBounty - success credits the program pool
func TestLockBounty_Success(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	f.programs.On("GetProgram", ctx, "prog-1").Return(testProgram(), nil)
	updated := testProgram()
	updated.TotalFunds = 1200
	updated.RemainingBalance = 1000
	f.repo.On("CreateBounty", ctx, mock.AnythingOfType("*model.BountyLock")).Return(updated, nil)

	b, err := f.uc.LockBounty(ctx, "prog-1", "bounty-7", 200)
	require.NoError(t, err)
	assert.Equal(t, "bounty-7", b.BountyID)
	assert.Equal(t, model.BountyStatusLocked, b.Status)
	assert.Contains(t, f.events.published, model.AuditEventBountyLocked)
	f.repo.AssertExpectations(t)
}

// Test LockBounty - validation failures never reach the repository
func TestLockBounty_Validation(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	_, err := f.uc.LockBounty(ctx, "prog-1", "bounty-7", 0)
	assert.Equal(t, ReasonInvalidAmount, kerrors.Reason(err))

	_, err = f.uc.LockBounty(ctx, "prog-1", "", 100)
	assert.Equal(t, ReasonInvalidArgument, kerrors.Reason(err))
	f.repo.AssertExpectations(t)
}

// Test LockBounty - unknown program
func TestLockBounty_NotInitialized(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	f.programs.On("GetProgram", ctx, "missing").Return(nil, ErrNotInitialized("missing"))

	_, err := f.uc.LockBounty(ctx, "missing", "bounty-7", 100)
	assert.True(t, IsNotInitialized(err))
	f.repo.AssertNotCalled(t, "CreateBounty", mock.Anything, mock.Anything)
}

// Test ReleaseFunds - the full gate sequence on the happy path
func TestReleaseFunds_Success(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	f.programs.On("GetProgram", ctx, "prog-1").Return(testProgram(), nil)
	f.nonceRepo.On("ConsumeNonce", ctx, "GSIGNER", uint64(4)).Return(uint64(5), true, nil)
	f.repo.On("GetBounty", ctx, "prog-1", "bounty-7").Return(testBounty(), nil)
	f.repo.On("ReleaseBounty", ctx, mock.Anything, "GRECIPIENT", mock.Anything).Return(int64(600), nil)

	amount, remaining, nextNonce, err := f.uc.ReleaseFunds(ctx, "prog-1", "bounty-7", "GSIGNER", "GRECIPIENT", 4, "sig")
	require.NoError(t, err)
	assert.Equal(t, int64(200), amount)
	assert.Equal(t, int64(600), remaining)
	assert.Equal(t, uint64(5), nextNonce)

	require.Len(t, f.transfer.calls, 1)
	assert.Equal(t, transferCall{"prog-1", "GRECIPIENT", 200}, f.transfer.calls[0])
	assert.Equal(t, uint32(1), f.trepo.state.Current.SuccessCount)
	assert.Equal(t, int64(200), f.trepo.state.Current.TotalOutflow)
	f.repo.AssertExpectations(t)
}

// Test ReleaseFunds - a released bucket cannot pay twice
func TestReleaseFunds_AlreadyReleased(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	released := testBounty()
	released.Status = model.BountyStatusReleased
	f.programs.On("GetProgram", ctx, "prog-1").Return(testProgram(), nil)
	f.nonceRepo.On("ConsumeNonce", ctx, "GSIGNER", uint64(5)).Return(uint64(6), true, nil)
	f.repo.On("GetBounty", ctx, "prog-1", "bounty-7").Return(released, nil)

	_, _, nextNonce, err := f.uc.ReleaseFunds(ctx, "prog-1", "bounty-7", "GSIGNER", "GRECIPIENT", 5, "sig")
	assert.Equal(t, ReasonInvalidStatus, kerrors.Reason(err))
	assert.Equal(t, uint64(6), nextNonce)
	assert.Equal(t, uint32(1), f.trepo.state.Current.FailureCount)
	f.repo.AssertNotCalled(t, "ReleaseBounty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.transfer.calls)
}

// Test ReleaseFunds - a missing bucket consumes the nonce and counts as a
// failure
func TestReleaseFunds_MissingBounty(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	f.programs.On("GetProgram", ctx, "prog-1").Return(testProgram(), nil)
	f.nonceRepo.On("ConsumeNonce", ctx, "GSIGNER", uint64(0)).Return(uint64(1), true, nil)
	f.repo.On("GetBounty", ctx, "prog-1", "ghost").Return(nil, ErrInvalidStatus("prog-1", "ghost", "not found"))

	_, _, nextNonce, err := f.uc.ReleaseFunds(ctx, "prog-1", "ghost", "GSIGNER", "GRECIPIENT", 0, "sig")
	assert.Equal(t, ReasonInvalidStatus, kerrors.Reason(err))
	assert.Equal(t, uint64(1), nextNonce)
	assert.Equal(t, uint32(1), f.trepo.state.Current.FailureCount)
}

// Test ReleaseFunds - the bucket amount goes through threshold admission
func TestReleaseFunds_ThresholdBreach(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	oversized := testBounty()
	oversized.Amount = 501
	f.programs.On("GetProgram", ctx, "prog-1").Return(testProgram(), nil)
	f.nonceRepo.On("ConsumeNonce", ctx, "GSIGNER", uint64(0)).Return(uint64(1), true, nil)
	f.repo.On("GetBounty", ctx, "prog-1", "bounty-7").Return(oversized, nil)

	_, _, nextNonce, err := f.uc.ReleaseFunds(ctx, "prog-1", "bounty-7", "GSIGNER", "GRECIPIENT", 0, "sig")
	assert.True(t, IsThresholdRejection(err))
	assert.Equal(t, uint64(1), nextNonce)
	f.repo.AssertNotCalled(t, "ReleaseBounty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Test ReleaseFunds - an open breaker rejects before the bucket is read, so
// a missing bucket surfaces as CooldownActive and records no failure
func TestReleaseFunds_CooldownBeforeStatus(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	require.Error(t, f.monitor.Admit(ctx, 501))
	failuresBefore := f.trepo.state.Current.FailureCount

	f.programs.On("GetProgram", ctx, "prog-1").Return(testProgram(), nil)
	f.nonceRepo.On("ConsumeNonce", ctx, "GSIGNER", uint64(0)).Return(uint64(1), true, nil)

	_, _, nextNonce, err := f.uc.ReleaseFunds(ctx, "prog-1", "ghost", "GSIGNER", "GRECIPIENT", 0, "sig")
	assert.Equal(t, ReasonCooldownActive, kerrors.Reason(err))
	assert.Equal(t, uint64(1), nextNonce)
	f.repo.AssertNotCalled(t, "GetBounty", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, failuresBefore, f.trepo.state.Current.FailureCount)

	// Once the cooldown lapses the missing bucket surfaces normally.
	f.clock.Advance(61 * time.Second)
	f.nonceRepo.On("ConsumeNonce", ctx, "GSIGNER", uint64(1)).Return(uint64(2), true, nil)
	f.repo.On("GetBounty", ctx, "prog-1", "ghost").Return(nil, ErrInvalidStatus("prog-1", "ghost", "not found"))

	_, _, _, err = f.uc.ReleaseFunds(ctx, "prog-1", "ghost", "GSIGNER", "GRECIPIENT", 1, "sig")
	assert.Equal(t, ReasonInvalidStatus, kerrors.Reason(err))
}

// Test ReleaseFunds - replay rejection wins over the status check
func TestReleaseFunds_NonceRejected(t *testing.T) {
	f := newBountyFixture(stubAuth{})
	ctx := context.Background()

	f.programs.On("GetProgram", ctx, "prog-1").Return(testProgram(), nil)
	f.nonceRepo.On("ConsumeNonce", ctx, "GSIGNER", uint64(2)).Return(uint64(3), false, nil)

	_, _, _, err := f.uc.ReleaseFunds(ctx, "prog-1", "bounty-7", "GSIGNER", "GRECIPIENT", 2, "sig")
	assert.True(t, IsInvalidNonce(err))
	f.repo.AssertNotCalled(t, "GetBounty", mock.Anything, mock.Anything, mock.Anything)
	assert.Nil(t, f.trepo.state)
}
