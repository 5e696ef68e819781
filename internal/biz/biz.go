// Package biz contains business logic layer implementations.
// This layer holds the core business rules and domain models.
package biz

import (
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewNonceRegistry,
	NewThresholdMonitor,
	NewEscrowUsecase,
	NewBountyUsecase,
	NewSystemClock,
	wire.Bind(new(Clock), new(SystemClock)),
)
