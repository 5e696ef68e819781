// Package service adapts the HTTP API surface onto the business layer.
package service

import (
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewEscrowService,
)
