package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/giftcard-checkout/pkg/common"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"github.com/richxcame/giftcard-checkout/pkg/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter resolves and enforces per-route token buckets.
type RateLimiter interface {
	RuleFor(endpoint string, identity ratelimit.IdentityType) ratelimit.Rule
	Allow(ctx context.Context, endpoint, identity string, rule ratelimit.Rule, identityType ratelimit.IdentityType) (*ratelimit.Result, error)
}

// RateLimit throttles a route per caller. Tokens carry a user id, guests are keyed by client IP.
// A Redis failure lets the request through.
func RateLimit(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath()
		identity, identityType := c.ClientIP(), ratelimit.IdentityAnonymous
		if userID := c.GetString("user_id"); userID != "" {
			identity, identityType = userID, ratelimit.IdentityAuthenticated
		}

		rule := limiter.RuleFor(endpoint, identityType)
		result, err := limiter.Allow(c.Request.Context(), endpoint, identity, rule, identityType)
		if err != nil {
			logger.WithContext(c.Request.Context()).Warn("rate limiter unavailable",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			common.ErrorResponse(c, http.StatusTooManyRequests, "too many requests, please try again later")
			c.Abort()
			return
		}

		c.Next()
	}
}
