package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/giftcard-checkout/pkg/config"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"github.com/richxcame/giftcard-checkout/pkg/resilience"
	"go.uber.org/zap"
)

// Client wraps the Redis client
type Client struct {
	*redis.Client
}

// NewRedisClient creates a new Redis client, retrying the initial ping on transient failures
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	retry := resilience.ConservativeRetryConfig()
	retry.MaxAttempts = 5
	retry.RetryableChecker = isRedisRetryable

	_, err := resilience.Retry(ctx, retry, func(ctx context.Context) (interface{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis not ready", zap.String("addr", cfg.RedisAddr()), zap.Error(err))
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// Close closes the Redis client
func (c *Client) Close() error {
	return c.Client.Close()
}

var retryableRedisMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"temporary failure",
	"timeout",
	"server closed",
	"loading",
	"busy",
	"masterdown",
	"readonly",
	"tryagain",
	"clusterdown",
}

// isRedisRetryable reports whether err is a transient failure worth retrying.
func isRedisRetryable(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableRedisMessages {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
