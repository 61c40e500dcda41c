package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker returns a health check function for PostgreSQL database
func DatabaseChecker(db Pinger) func() error {
	return func() error {
		if db == nil {
			return errors.New("database not configured")
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		return db.Ping(ctx)
	}
}

// RedisChecker returns a health check function for Redis
func RedisChecker(client redis.Cmdable) func() error {
	return func() error {
		if client == nil {
			return errors.New("redis not configured")
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

// NATSChecker returns a health check function for the NATS connection
func NATSChecker(conn *nats.Conn) func() error {
	return func() error {
		if conn == nil {
			return errors.New("nats not configured")
		}
		if status := conn.Status(); status != nats.CONNECTED {
			return fmt.Errorf("nats status %s", status.String())
		}
		return nil
	}
}

// HTTPEndpointChecker returns a health check function for an HTTP dependency such as the ledger
func HTTPEndpointChecker(url string) func() error {
	client := &http.Client{Timeout: defaultTimeout}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("endpoint returned %d", resp.StatusCode)
		}
		return nil
	}
}
