package data

import (
	"context"
	"errors"
	"time"

	"EscrowLane/internal/biz"
	"EscrowLane/internal/model"
	pkgerrors "EscrowLane/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Bounty is the GORM model for bounty_locks table.
type Bounty struct {
	ID         int64      `gorm:"primaryKey;column:id"`
	ProgramID  string     `gorm:"column:program_id;size:128;not null;uniqueIndex:ux_program_bounty"`
	BountyID   string     `gorm:"column:bounty_id;size:128;not null;uniqueIndex:ux_program_bounty"`
	Amount     int64      `gorm:"column:amount;not null"`
	Status     string     `gorm:"column:status;type:enum('locked','released');default:'locked';not null"`
	ReleasedTo string     `gorm:"column:released_to;size:64"`
	ReleasedAt *time.Time `gorm:"column:released_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (Bounty) TableName() string {
	return "bounty_locks"
}

func (b *Bounty) toModel() *model.BountyLock {
	return &model.BountyLock{
		ID:         b.ID,
		ProgramID:  b.ProgramID,
		BountyID:   b.BountyID,
		Amount:     b.Amount,
		Status:     b.Status,
		ReleasedTo: b.ReleasedTo,
		ReleasedAt: b.ReleasedAt,
		CreatedAt:  b.CreatedAt,
	}
}

// BountyRepo implements biz.BountyRepo on MySQL. The release path reuses
// the guarded single-row UPDATE pattern of EscrowRepo: the status flip and
// the balance decrement each match at most one row or the transaction
// aborts.
type BountyRepo struct {
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewBountyRepo creates a new bounty repository.
func NewBountyRepo(db *gorm.DB, cache CacheClient, logger log.Logger) *BountyRepo {
	return &BountyRepo{
		db:     db,
		cache:  cache,
		logger: log.NewHelper(logger),
	}
}

// CreateBounty inserts the bucket and credits the program's funds in one
// transaction.
func (r *BountyRepo) CreateBounty(ctx context.Context, b *model.BountyLock) (*model.EscrowProgram, error) {
	var program Program
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &Bounty{
			ProgramID: b.ProgramID,
			BountyID:  b.BountyID,
			Amount:    b.Amount,
			Status:    model.BountyStatusLocked,
		}
		if err := tx.Create(row).Error; err != nil {
			if pkgerrors.IsDuplicateKeyError(err) {
				return biz.ErrInvalidStatus(b.ProgramID, b.BountyID, "already exists")
			}
			return pkgerrors.ClassifyDBError(err)
		}
		b.ID = row.ID
		b.CreatedAt = row.CreatedAt

		res := tx.Model(&Program{}).
			Where("program_id = ?", b.ProgramID).
			Updates(map[string]interface{}{
				"total_funds":       gorm.Expr("total_funds + ?", b.Amount),
				"remaining_balance": gorm.Expr("remaining_balance + ?", b.Amount),
			})
		if res.Error != nil {
			return pkgerrors.ClassifyDBError(res.Error)
		}
		if res.RowsAffected == 0 {
			return biz.ErrNotInitialized(b.ProgramID)
		}

		return tx.Where("program_id = ?", b.ProgramID).First(&program).Error
	})
	if err != nil {
		return nil, err
	}

	r.invalidate(ctx, b.ProgramID, b.BountyID)
	return program.toModel(), nil
}

// GetBounty returns the bucket, serving repeated reads from cache. A
// missing bucket reports InvalidStatus: from the caller's view there is no
// locked bucket to release.
func (r *BountyRepo) GetBounty(ctx context.Context, programID, bountyID string) (*model.BountyLock, error) {
	key := BuildCacheKey(CacheKeyBounty, programID, bountyID)

	var cached model.BountyLock
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	var row Bounty
	err := r.db.WithContext(ctx).
		Where("program_id = ? AND bounty_id = ?", programID, bountyID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrInvalidStatus(programID, bountyID, "not found")
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}

	m := row.toModel()
	if err := r.cache.Set(ctx, key, m, TTLBounty); err != nil {
		r.logger.Warnw("bounty cache set failed", "bounty_id", bountyID, "error", err)
	}
	return m, nil
}

// ReleaseBounty flips the bucket to released and pays out its amount in one
// transaction. The guarded status flip makes concurrent releases lose
// cleanly with InvalidStatus.
func (r *BountyRepo) ReleaseBounty(ctx context.Context, b *model.BountyLock, recipient string, record *model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error) {
	var remaining int64
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Bounty{}).
			Where("program_id = ? AND bounty_id = ? AND status = ?", b.ProgramID, b.BountyID, model.BountyStatusLocked).
			Updates(map[string]interface{}{
				"status":      model.BountyStatusReleased,
				"released_to": recipient,
				"released_at": now,
			})
		if res.Error != nil {
			return pkgerrors.ClassifyDBError(res.Error)
		}
		if res.RowsAffected == 0 {
			return biz.ErrInvalidStatus(b.ProgramID, b.BountyID, model.BountyStatusReleased)
		}

		res = tx.Model(&Program{}).
			Where("program_id = ? AND remaining_balance >= ?", b.ProgramID, b.Amount).
			Update("remaining_balance", gorm.Expr("remaining_balance - ?", b.Amount))
		if res.Error != nil {
			return pkgerrors.ClassifyDBError(res.Error)
		}
		if res.RowsAffected == 0 {
			return biz.ErrInsufficientBalance(b.Amount, 0)
		}

		payout := &Payout{
			ProgramID: record.ProgramID,
			Recipient: record.Recipient,
			Amount:    record.Amount,
			BountyID:  record.BountyID,
		}
		if err := tx.Create(payout).Error; err != nil {
			return pkgerrors.ClassifyDBError(err)
		}

		if err := transfer(ctx); err != nil {
			return err
		}

		var program Program
		if err := tx.Where("program_id = ?", b.ProgramID).First(&program).Error; err != nil {
			return pkgerrors.ClassifyDBError(err)
		}
		remaining = program.RemainingBalance
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.Status = model.BountyStatusReleased
	b.ReleasedTo = recipient
	b.ReleasedAt = &now

	r.invalidate(ctx, b.ProgramID, b.BountyID)
	return remaining, nil
}

func (r *BountyRepo) invalidate(ctx context.Context, programID, bountyID string) {
	if err := r.cache.Delete(ctx, BuildCacheKey(CacheKeyProgram, programID)); err != nil {
		r.logger.Warnw("program cache invalidation failed", "program_id", programID, "error", err)
	}
	if err := r.cache.Delete(ctx, BuildCacheKey(CacheKeyBounty, programID, bountyID)); err != nil {
		r.logger.Warnw("bounty cache invalidation failed", "bounty_id", bountyID, "error", err)
	}
}
