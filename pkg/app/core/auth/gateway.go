package auth

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/secret-orderbook/pkg/app/core/msg"
)

// Registry is the external service that owns view keys.
type Registry interface {
	// IsKeyValid reports whether viewKey belongs to owner. factoryKey is the
	// shared secret established when the order book was registered.
	IsKeyValid(ctx context.Context, factoryKey string, owner common.Address, viewKey string) (bool, error)
}

// Gateway guards every read of order data behind a view-key check.
type Gateway struct {
	registry Registry
	log      *zap.Logger

	// OnDenied is called for every rejected check (metrics hook).
	OnDenied func(reason string)
}

func NewGateway(registry Registry, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{registry: registry, log: log}
}

// Authorize fails closed: anything other than an explicit true from the
// registry yields ErrUnauthorized.
func (g *Gateway) Authorize(ctx context.Context, factoryKey string, owner common.Address, viewKey string) error {
	if viewKey == "" {
		g.deny("empty_key", owner, nil)
		return fmt.Errorf("%w: empty view key", msg.ErrUnauthorized)
	}
	ok, err := g.registry.IsKeyValid(ctx, factoryKey, owner, viewKey)
	if err != nil {
		g.deny("registry_error", owner, err)
		return fmt.Errorf("%w: registry unavailable", msg.ErrUnauthorized)
	}
	if !ok {
		g.deny("invalid_key", owner, nil)
		return msg.ErrUnauthorized
	}
	return nil
}

func (g *Gateway) deny(reason string, owner common.Address, err error) {
	fields := []zap.Field{zap.String("reason", reason), zap.String("owner", owner.Hex())}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	g.log.Warn("authorization_denied", fields...)
	if g.OnDenied != nil {
		g.OnDenied(reason)
	}
}
