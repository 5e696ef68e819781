package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"EscrowLane/pkg/crypto"
	pkgerrors "EscrowLane/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Signer status values.
const (
	SignerStatusActive   = "active"
	SignerStatusDisabled = "disabled"
)

// Signer is the GORM model for signers table. The HMAC secret is AES-GCM
// encrypted at rest.
type Signer struct {
	ID              int64     `gorm:"primaryKey;column:id"`
	Address         string    `gorm:"column:address;size:64;uniqueIndex;not null"`
	SecretEncrypted string    `gorm:"column:secret_encrypted;type:text;not null"`
	Status          string    `gorm:"column:status;type:enum('active','disabled');default:'active';not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Signer) TableName() string {
	return "signers"
}

// SignerAuthService implements biz.AuthService: request signatures are
// HMAC-SHA256 over the canonical payload, verified against the signer's
// decrypted secret. Decrypted secrets are cached briefly to keep the hot
// payout path off the database.
type SignerAuthService struct {
	db     *gorm.DB
	cache  CacheClient
	aes    *crypto.AESCrypto
	logger *log.Helper
}

// NewSignerAuthService creates the signer authentication service.
func NewSignerAuthService(db *gorm.DB, cache CacheClient, aes *crypto.AESCrypto, logger log.Logger) *SignerAuthService {
	return &SignerAuthService{
		db:     db,
		cache:  cache,
		aes:    aes,
		logger: log.NewHelper(logger),
	}
}

// VerifySignature checks the HMAC signature for the signer. Unknown,
// disabled, or mismatching signers all fail verification; the caller maps
// the failure to its taxonomy.
func (s *SignerAuthService) VerifySignature(ctx context.Context, signer string, payload []byte, signature string) error {
	if signer == "" || signature == "" {
		return fmt.Errorf("signer and signature are required")
	}

	secret, err := s.signerSecret(ctx, signer)
	if err != nil {
		return err
	}

	if !crypto.VerifyHMAC(secret, payload, signature) {
		return fmt.Errorf("signature mismatch for signer %s", signer)
	}
	return nil
}

// signerSecret returns the signer's decrypted HMAC secret, from cache when
// possible.
func (s *SignerAuthService) signerSecret(ctx context.Context, signer string) ([]byte, error) {
	key := BuildCacheKey(CacheKeySigner, signer)

	var cached string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return []byte(cached), nil
	}

	var row Signer
	err := s.db.WithContext(ctx).Where("address = ?", signer).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unknown signer %s", signer)
		}
		return nil, pkgerrors.ClassifyDBError(err)
	}
	if row.Status != SignerStatusActive {
		return nil, fmt.Errorf("signer %s is %s", signer, row.Status)
	}

	secret, err := s.aes.Decrypt(row.SecretEncrypted)
	if err != nil {
		s.logger.Errorw("signer secret decryption failed", "signer", signer, "error", err)
		return nil, fmt.Errorf("signer secret unavailable")
	}

	if err := s.cache.Set(ctx, key, secret, TTLSigner); err != nil {
		s.logger.Warnw("signer secret cache set failed", "signer", signer, "error", err)
	}
	return []byte(secret), nil
}
