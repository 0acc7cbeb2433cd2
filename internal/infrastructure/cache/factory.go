package cache

import (
	"context"
	"fmt"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewDispatchGuard builds the guard selected by the notification config.
// It returns nil for the "none" backend. When Redis is selected but
// unreachable it falls back to the in-memory guard unless fallback is off.
func NewDispatchGuard(ctx context.Context, notif config.NotificationConfig, redisCfg config.RedisConfig, allowFallback bool, logger *zap.Logger) (shared.DispatchGuard, error) {
	switch notif.GuardBackend {
	case config.GuardNone:
		logger.Info("dispatch guard disabled")
		return nil, nil
	case config.GuardMemory:
		logger.Info("using in-memory dispatch guard")
		return NewInMemoryDispatchGuard(notif.ClaimTTL), nil
	case config.GuardRedis:
		guard, err := NewRedisDispatchGuard(ctx, &redis.Options{
			Addr:     redisCfg.Addr(),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		if err == nil {
			logger.Info("using Redis dispatch guard", zap.String("addr", redisCfg.Addr()))
			return guard, nil
		}
		if !allowFallback {
			return nil, fmt.Errorf("redis required for dispatch guard but unavailable: %w", err)
		}
		logger.Warn("Redis unavailable, falling back to in-memory dispatch guard; "+
			"claims will not be shared across instances",
			zap.Error(err),
		)
		return NewInMemoryDispatchGuard(notif.ClaimTTL), nil
	default:
		return nil, fmt.Errorf("unknown dispatch guard backend %q", notif.GuardBackend)
	}
}
