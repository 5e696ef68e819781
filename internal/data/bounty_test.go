package data

import (
	"context"
	"os"
	"testing"
	"time"

	"EscrowLane/internal/biz"
	"EscrowLane/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// setupBountyTestDB creates a BountyRepo backed by sqlmock
func setupBountyTestDB(t *testing.T) (*BountyRepo, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	repo := NewBountyRepo(gormDB, NewCacheClient(nil), log.NewStdLogger(os.Stdout))
	cleanup := func() {
		sqlDB.Close()
	}
	return repo, mock, cleanup
}

func bountyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "program_id", "bounty_id", "amount", "status", "released_to", "released_at", "created_at",
	})
}

// Test CreateBounty - inserts the bucket and credits the program atomically
func TestBountyRepo_CreateBounty(t *testing.T) {
	repo, mock, cleanup := setupBountyTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `bounty_locks`").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("UPDATE `escrow_programs` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM `escrow_programs`").
		WillReturnRows(programRows().AddRow(1, "prog-1", "GSIGNER", 1200, 1000, now, now))
	mock.ExpectCommit()

	b := &model.BountyLock{ProgramID: "prog-1", BountyID: "bounty-7", Amount: 200, Status: model.BountyStatusLocked}
	p, err := repo.CreateBounty(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.ID)
	assert.Equal(t, int64(1200), p.TotalFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Test CreateBounty - duplicate (program_id, bounty_id)
func TestBountyRepo_CreateBounty_Duplicate(t *testing.T) {
	repo, mock, cleanup := setupBountyTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `bounty_locks`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	b := &model.BountyLock{ProgramID: "prog-1", BountyID: "bounty-7", Amount: 200}
	_, err := repo.CreateBounty(context.Background(), b)
	assert.Equal(t, biz.ReasonInvalidStatus, kerrors.Reason(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Test CreateBounty - unknown program rolls back the insert
func TestBountyRepo_CreateBounty_NotInitialized(t *testing.T) {
	repo, mock, cleanup := setupBountyTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `bounty_locks`").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("UPDATE `escrow_programs` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	b := &model.BountyLock{ProgramID: "missing", BountyID: "bounty-7", Amount: 200}
	_, err := repo.CreateBounty(context.Background(), b)
	assert.Equal(t, biz.ReasonNotInitialized, kerrors.Reason(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Test GetBounty - database read with cache backfill
func TestBountyRepo_GetBounty(t *testing.T) {
	repo, mock, cleanup := setupBountyTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM `bounty_locks`").
		WillReturnRows(bountyRows().AddRow(3, "prog-1", "bounty-7", 200, "locked", "", nil, time.Now()))

	ctx := context.Background()
	b, err := repo.GetBounty(ctx, "prog-1", "bounty-7")
	require.NoError(t, err)
	assert.Equal(t, int64(200), b.Amount)
	assert.Equal(t, model.BountyStatusLocked, b.Status)

	// Second read served from cache.
	_, err = repo.GetBounty(ctx, "prog-1", "bounty-7")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Test GetBounty - a missing bucket is an invalid status, not a 404
func TestBountyRepo_GetBounty_NotFound(t *testing.T) {
	repo, mock, cleanup := setupBountyTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM `bounty_locks`").
		WillReturnRows(bountyRows())

	_, err := repo.GetBounty(context.Background(), "prog-1", "ghost")
	assert.Equal(t, biz.ReasonInvalidStatus, kerrors.Reason(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Test ReleaseBounty - status flip, decrement, history, transfer, commit
func TestBountyRepo_ReleaseBounty(t *testing.T) {
	repo, mock, cleanup := setupBountyTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `bounty_locks` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `escrow_programs` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `payout_records`").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery("SELECT (.+) FROM `escrow_programs`").
		WillReturnRows(programRows().AddRow(1, "prog-1", "GSIGNER", 1200, 600, now, now))
	mock.ExpectCommit()

	b := &model.BountyLock{ID: 3, ProgramID: "prog-1", BountyID: "bounty-7", Amount: 200, Status: model.BountyStatusLocked}
	record := &model.PayoutRecord{ProgramID: "prog-1", Recipient: "GRECIPIENT", Amount: 200, BountyID: "bounty-7"}

	transferred := false
	remaining, err := repo.ReleaseBounty(context.Background(), b, "GRECIPIENT", record, func(ctx context.Context) error {
		transferred = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, transferred)
	assert.Equal(t, int64(600), remaining)
	assert.Equal(t, model.BountyStatusReleased, b.Status)
	assert.Equal(t, "GRECIPIENT", b.ReleasedTo)
	assert.NotNil(t, b.ReleasedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Test ReleaseBounty - a concurrent release loses on the guarded flip
func TestBountyRepo_ReleaseBounty_AlreadyReleased(t *testing.T) {
	repo, mock, cleanup := setupBountyTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `bounty_locks` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	b := &model.BountyLock{ID: 3, ProgramID: "prog-1", BountyID: "bounty-7", Amount: 200, Status: model.BountyStatusLocked}
	record := &model.PayoutRecord{ProgramID: "prog-1", Recipient: "GRECIPIENT", Amount: 200, BountyID: "bounty-7"}

	_, err := repo.ReleaseBounty(context.Background(), b, "GRECIPIENT", record, func(ctx context.Context) error {
		t.Fatal("transfer must not run when the status flip fails")
		return nil
	})
	assert.Equal(t, biz.ReasonInvalidStatus, kerrors.Reason(err))
	assert.Equal(t, model.BountyStatusLocked, b.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
