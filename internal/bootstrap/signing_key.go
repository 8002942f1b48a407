package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/echowrite/internal/jwt"
)

// EnsureSigningKey makes sure a token signing key exists before traffic is served.
func EnsureSigningKey(lc fx.Lifecycle, manager *jwt.KeyManager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSigningKey(ctx, manager, logger)
		},
	})
}

func ensureSigningKey(ctx context.Context, manager *jwt.KeyManager, logger *zap.Logger) error {
	key, err := manager.EnsureSigningKey(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap signing key: %w", err)
	}
	if logger != nil {
		logger.Info("signing key ready", zap.String("kid", key.KID), zap.String("alg", key.Algorithm))
	}
	return nil
}
