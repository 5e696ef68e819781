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

// Program is the GORM model for escrow_programs table.
type Program struct {
	ID               int64     `gorm:"primaryKey;column:id"`
	ProgramID        string    `gorm:"column:program_id;size:128;uniqueIndex;not null"`
	AuthorizedSigner string    `gorm:"column:authorized_signer;size:64;not null"`
	TotalFunds       int64     `gorm:"column:total_funds;not null;default:0"`
	RemainingBalance int64     `gorm:"column:remaining_balance;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Program) TableName() string {
	return "escrow_programs"
}

// Payout is the GORM model for payout_records table. Rows are append-only.
type Payout struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	ProgramID string    `gorm:"column:program_id;size:128;index;not null"`
	Recipient string    `gorm:"column:recipient;size:64;not null"`
	Amount    int64     `gorm:"column:amount;not null"`
	BountyID  string    `gorm:"column:bounty_id;size:128"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (Payout) TableName() string {
	return "payout_records"
}

func (p *Program) toModel() *model.EscrowProgram {
	return &model.EscrowProgram{
		ID:               p.ID,
		ProgramID:        p.ProgramID,
		AuthorizedSigner: p.AuthorizedSigner,
		TotalFunds:       p.TotalFunds,
		RemainingBalance: p.RemainingBalance,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

// EscrowRepo implements biz.EscrowRepo on MySQL with a two-tier program
// cache. Balance mutations use guarded single-row UPDATEs so interleaved
// payouts cannot overdraw.
type EscrowRepo struct {
	db     *gorm.DB
	cache  CacheClient
	logger *log.Helper
}

// NewEscrowRepo creates a new escrow repository.
func NewEscrowRepo(db *gorm.DB, cache CacheClient, logger log.Logger) *EscrowRepo {
	return &EscrowRepo{
		db:     db,
		cache:  cache,
		logger: log.NewHelper(logger),
	}
}

// CreateProgram inserts a new zero-balance program.
func (r *EscrowRepo) CreateProgram(ctx context.Context, p *model.EscrowProgram) error {
	row := &Program{
		ProgramID:        p.ProgramID,
		AuthorizedSigner: p.AuthorizedSigner,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if pkgerrors.IsDuplicateKeyError(err) {
			return biz.ErrAlreadyInitialized(p.ProgramID)
		}
		return pkgerrors.ClassifyDBError(err)
	}
	p.ID = row.ID
	p.CreatedAt = row.CreatedAt
	p.UpdatedAt = row.UpdatedAt
	return nil
}

// GetProgram returns the program, serving repeated reads from cache.
func (r *EscrowRepo) GetProgram(ctx context.Context, programID string) (*model.EscrowProgram, error) {
	key := BuildCacheKey(CacheKeyProgram, programID)

	var cached model.EscrowProgram
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	var row Program
	err := r.db.WithContext(ctx).Where("program_id = ?", programID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrNotInitialized(programID)
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}

	m := row.toModel()
	if err := r.cache.Set(ctx, key, m, TTLProgram); err != nil {
		r.logger.Warnw("program cache set failed", "program_id", programID, "error", err)
	}
	return m, nil
}

// AddFunds increases total and remaining funds in one guarded UPDATE.
func (r *EscrowRepo) AddFunds(ctx context.Context, programID string, amount int64) (*model.EscrowProgram, error) {
	res := r.db.WithContext(ctx).Model(&Program{}).
		Where("program_id = ?", programID).
		Updates(map[string]interface{}{
			"total_funds":       gorm.Expr("total_funds + ?", amount),
			"remaining_balance": gorm.Expr("remaining_balance + ?", amount),
		})
	if res.Error != nil {
		return nil, pkgerrors.ClassifyDBError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, biz.ErrNotInitialized(programID)
	}

	r.invalidate(ctx, programID)
	return r.GetProgram(ctx, programID)
}

// ExecutePayout runs the full payout mutation in one transaction. The
// balance decrement is guarded by remaining_balance >= total; a transfer
// failure before commit rolls back both the decrement and the history rows.
func (r *EscrowRepo) ExecutePayout(ctx context.Context, programID string, total int64, records []*model.PayoutRecord, transfer func(ctx context.Context) error) (int64, error) {
	var remaining int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Program{}).
			Where("program_id = ? AND remaining_balance >= ?", programID, total).
			Update("remaining_balance", gorm.Expr("remaining_balance - ?", total))
		if res.Error != nil {
			return pkgerrors.ClassifyDBError(res.Error)
		}
		if res.RowsAffected == 0 {
			// Raced with another payout since the usecase's balance
			// check; surface the current balance.
			var row Program
			if err := tx.Where("program_id = ?", programID).First(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return biz.ErrNotInitialized(programID)
				}
				return pkgerrors.ClassifyDBError(err)
			}
			return biz.ErrInsufficientBalance(total, row.RemainingBalance)
		}

		rows := make([]*Payout, len(records))
		for i, rec := range records {
			rows[i] = &Payout{
				ProgramID: rec.ProgramID,
				Recipient: rec.Recipient,
				Amount:    rec.Amount,
				BountyID:  rec.BountyID,
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return pkgerrors.ClassifyDBError(err)
		}

		if err := transfer(ctx); err != nil {
			return err
		}

		var row Program
		if err := tx.Where("program_id = ?", programID).First(&row).Error; err != nil {
			return pkgerrors.ClassifyDBError(err)
		}
		remaining = row.RemainingBalance
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.invalidate(ctx, programID)
	return remaining, nil
}

func (r *EscrowRepo) invalidate(ctx context.Context, programID string) {
	if err := r.cache.Delete(ctx, BuildCacheKey(CacheKeyProgram, programID)); err != nil {
		r.logger.Warnw("program cache invalidation failed", "program_id", programID, "error", err)
	}
}
