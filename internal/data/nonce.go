package data

import (
	"context"
	"errors"
	"time"

	pkgerrors "EscrowLane/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// SignerNonce is the GORM model for signer_nonces table.
type SignerNonce struct {
	Signer    string    `gorm:"primaryKey;column:signer;size:64"`
	Nonce     uint64    `gorm:"column:nonce;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (SignerNonce) TableName() string {
	return "signer_nonces"
}

// NonceRepo implements biz.NonceRepo on MySQL. The increment is a single
// conditional UPDATE keyed on the expected value, so concurrent submissions
// of the same nonce race on the row and exactly one wins.
type NonceRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewNonceRepo creates a new nonce repository.
func NewNonceRepo(db *gorm.DB, logger log.Logger) *NonceRepo {
	return &NonceRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// CurrentNonce returns the signer's expected next nonce. Signers without a
// row report 0; no row is created.
func (r *NonceRepo) CurrentNonce(ctx context.Context, signer string) (uint64, error) {
	var sn SignerNonce
	err := r.db.WithContext(ctx).Where("signer = ?", signer).First(&sn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, pkgerrors.ClassifyDBError(err)
	}
	return sn.Nonce, nil
}

// ConsumeNonce advances the counter iff the stored value equals expected.
//
// The fast path is one conditional UPDATE. When no row matches and the
// expected value is 0, the signer may simply be new: an INSERT with the
// counter already advanced covers first use, and a duplicate-key failure
// means another call won the race. All other misses are mismatches; the
// stored value is fetched and reported.
func (r *NonceRepo) ConsumeNonce(ctx context.Context, signer string, expected uint64) (uint64, bool, error) {
	res := r.db.WithContext(ctx).Model(&SignerNonce{}).
		Where("signer = ? AND nonce = ?", signer, expected).
		Update("nonce", gorm.Expr("nonce + 1"))
	if res.Error != nil {
		return 0, false, pkgerrors.ClassifyDBError(res.Error)
	}
	if res.RowsAffected == 1 {
		return expected + 1, true, nil
	}

	if expected == 0 {
		err := r.db.WithContext(ctx).Create(&SignerNonce{Signer: signer, Nonce: 1}).Error
		if err == nil {
			return 1, true, nil
		}
		if !pkgerrors.IsDuplicateKeyError(err) {
			return 0, false, pkgerrors.ClassifyDBError(err)
		}
		// Lost the first-use race; report the stored value below.
	}

	var sn SignerNonce
	err := r.db.WithContext(ctx).Where("signer = ?", signer).First(&sn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Row absent, so the counter is logically 0 and expected != 0.
			return 0, false, nil
		}
		return 0, false, pkgerrors.ClassifyDBError(err)
	}
	return sn.Nonce, false, nil
}
