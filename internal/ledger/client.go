// Package ledger is the HTTP client for the remote gift card ledger.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/richxcame/giftcard-checkout/internal/giftcards"
	"github.com/richxcame/giftcard-checkout/pkg/config"
	"github.com/richxcame/giftcard-checkout/pkg/httpclient"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"github.com/richxcame/giftcard-checkout/pkg/resilience"
	"go.uber.org/zap"
)

// cardResponse is the ledger representation of a gift card
type cardResponse struct {
	ID           string     `json:"id"`
	Balance      int64      `json:"balance"`
	Currency     string     `json:"currency"`
	ExpiresAt    *time.Time `json:"expires_at"`
	IsRedeemable bool       `json:"is_redeemable"`
}

// transactionResponse is the ledger representation of a transaction
type transactionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type redeemRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Capture  bool   `json:"capture"`
}

// Client talks to the gift card ledger API
type Client struct {
	http *httpclient.Client
}

var _ giftcards.LedgerClient = (*Client)(nil)

// NewClient creates a ledger client with retries and, when enabled, a circuit breaker
func NewClient(cfg config.LedgerConfig, apiKey string) *Client {
	retry := resilience.ConservativeRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}

	opts := []httpclient.Option{
		httpclient.WithHeader("Authorization", "Bearer "+apiKey),
		httpclient.WithRetry(retry),
	}
	if cfg.BreakerEnabled {
		settings := resilience.BuildSettings("gift-card-ledger", resilience.Tuning{
			IntervalSeconds: cfg.BreakerInterval,
			TimeoutSeconds:  cfg.BreakerTimeout,
			Failures:        cfg.BreakerFailures,
			Successes:       cfg.BreakerSuccesses,
		}, isClientFault)
		opts = append(opts, httpclient.WithBreaker(resilience.NewCircuitBreaker(settings, resilience.GracefulDegradation("gift-card-ledger"))))
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Client{http: httpclient.NewClientWithOptions(cfg.BaseURL, timeout, opts...)}
}

// GetCard looks up a card by its normalized code
func (c *Client) GetCard(ctx context.Context, code string) (*giftcards.LedgerCard, error) {
	body, err := c.http.Get(ctx, "/v1/giftcards/"+url.PathEscape(code), nil)
	if err != nil {
		if isNotFound(err) {
			return nil, giftcards.ErrCardNotFound
		}
		return nil, fmt.Errorf("get gift card: %w", err)
	}

	var resp cardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode gift card: %w", err)
	}
	return &giftcards.LedgerCard{
		ID:           resp.ID,
		Balance:      resp.Balance,
		Currency:     resp.Currency,
		ExpiresAt:    resp.ExpiresAt,
		IsRedeemable: resp.IsRedeemable,
	}, nil
}

// Reserve redeems an amount from a card, holding it until capture or release
func (c *Client) Reserve(ctx context.Context, req giftcards.ReserveRequest) (*giftcards.LedgerTransaction, error) {
	payload := redeemRequest{Amount: req.AmountCents, Currency: req.Currency, Capture: req.Capture}
	body, err := c.http.PostWithIdempotency(ctx, "/v1/giftcards/"+url.PathEscape(req.Code)+"/redeem", payload, nil, req.IdempotencyKey)
	if err != nil {
		if isNotFound(err) {
			return nil, giftcards.ErrCardNotFound
		}
		return nil, fmt.Errorf("redeem gift card: %w", err)
	}

	tx, err := decodeTransaction(body)
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx).Debug("ledger reservation created",
		zap.String("tx_id", tx.ID),
		zap.Int64("amount", req.AmountCents),
	)
	return tx, nil
}

// Capture settles a pending reservation
func (c *Client) Capture(ctx context.Context, txID string) (*giftcards.LedgerTransaction, error) {
	return c.transition(ctx, txID, "capture")
}

// Release cancels a pending reservation, returning the amount to the card
func (c *Client) Release(ctx context.Context, txID string) (*giftcards.LedgerTransaction, error) {
	return c.transition(ctx, txID, "release")
}

// GetTransaction fetches a transaction by id
func (c *Client) GetTransaction(ctx context.Context, txID string) (*giftcards.LedgerTransaction, error) {
	body, err := c.http.Get(ctx, "/v1/transactions/"+url.PathEscape(txID), nil)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", txID, err)
	}
	return decodeTransaction(body)
}

func (c *Client) transition(ctx context.Context, txID, action string) (*giftcards.LedgerTransaction, error) {
	path := fmt.Sprintf("/v1/transactions/%s/%s", url.PathEscape(txID), action)
	body, err := c.http.PostWithIdempotency(ctx, path, nil, nil, txID+":"+action)
	if err != nil {
		return nil, fmt.Errorf("%s transaction %s: %w", action, txID, err)
	}
	return decodeTransaction(body)
}

func decodeTransaction(body []byte) (*giftcards.LedgerTransaction, error) {
	var resp transactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if resp.ID == "" {
		return nil, errors.New("decode transaction: missing id")
	}
	return &giftcards.LedgerTransaction{
		ID:     resp.ID,
		Status: giftcards.TransactionStatus(resp.Status),
		Amount: resp.Amount,
	}, nil
}

func isNotFound(err error) bool {
	var httpErr *httpclient.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// isClientFault keeps rejected requests from tripping the breaker
func isClientFault(err error) bool {
	if err == nil {
		return true
	}
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 &&
		!resilience.IsRetryableHTTPStatus(httpErr.StatusCode)
}
