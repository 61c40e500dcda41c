package resilience

import (
	"context"

	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// FallbackFunc runs instead of the protected call while the breaker rejects traffic.
type FallbackFunc func(ctx context.Context, err error) (interface{}, error)

// NoopFallback surfaces ErrCircuitOpen.
func NoopFallback(ctx context.Context, err error) (interface{}, error) {
	return nil, ErrCircuitOpen
}

// GracefulDegradation logs the rejection and surfaces ErrCircuitOpen, leaving the caller to degrade.
func GracefulDegradation(dependency string) FallbackFunc {
	return func(ctx context.Context, err error) (interface{}, error) {
		logger.WithContext(ctx).Warn("circuit breaker open, skipping call",
			zap.String("dependency", dependency),
			zap.Error(err),
		)
		return nil, ErrCircuitOpen
	}
}
