// Package data provides data access layer implementations.
// It handles database connections and data persistence.
package data

import (
	"EscrowLane/internal/biz"

	"github.com/google/wire"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
	NewNonceRepo,
	NewEscrowRepo,
	NewBountyRepo,
	NewThresholdRepo,
	NewSignerAuthService,
	NewAuditLogger,
	NewEventBus,
	NewTransferService,
	// Bind repository implementations to biz layer interfaces
	wire.Bind(new(biz.NonceRepo), new(*NonceRepo)),
	wire.Bind(new(biz.EscrowRepo), new(*EscrowRepo)),
	wire.Bind(new(biz.BountyRepo), new(*BountyRepo)),
	wire.Bind(new(biz.ThresholdRepo), new(*ThresholdRepo)),
	wire.Bind(new(biz.AuthService), new(*SignerAuthService)),
	wire.Bind(new(biz.AuditLogger), new(*AuditLoggerImpl)),
	wire.Bind(new(biz.EventBus), new(*EventBusImpl)),
	wire.Bind(new(biz.TransferService), new(*TransferServiceImpl)),
)
