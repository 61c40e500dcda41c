package giftcards

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the ledger-side status of a reservation
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionCaptured TransactionStatus = "captured"
	TransactionReleased TransactionStatus = "released"
)

// LedgerCard is a gift card as reported by the ledger. Amounts are in cents.
type LedgerCard struct {
	ID           string
	Balance      int64
	Currency     string
	ExpiresAt    *time.Time
	IsRedeemable bool
}

// LedgerTransaction is a ledger transaction. Amount is in cents.
type LedgerTransaction struct {
	ID     string
	Status TransactionStatus
	Amount int64
}

// ReserveRequest places a hold on a gift card
type ReserveRequest struct {
	Code           string
	AmountCents    int64
	Currency       string
	Capture        bool
	IdempotencyKey string
}

// LedgerClient is the remote gift card service. GetCard returns ErrCardNotFound for unknown codes.
type LedgerClient interface {
	GetCard(ctx context.Context, code string) (*LedgerCard, error)
	Reserve(ctx context.Context, req ReserveRequest) (*LedgerTransaction, error)
	Capture(ctx context.Context, txID string) (*LedgerTransaction, error)
	Release(ctx context.Context, txID string) (*LedgerTransaction, error)
	GetTransaction(ctx context.Context, txID string) (*LedgerTransaction, error)
}

// SessionStore holds ephemeral per-session state. Load returns an empty state when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Save(ctx context.Context, sessionID string, state *SessionState) error
	Delete(ctx context.Context, sessionID string) error
}

// OrderStore is the host order system.
// SaveGiftCards fails with ErrRevisionConflict when expectedRevision is stale and returns the new revision.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)
	SaveGiftCards(ctx context.Context, orderID uuid.UUID, cards []AppliedCard, expectedRevision int64) (int64, error)
	SetOrderTotal(ctx context.Context, orderID uuid.UUID, total float64) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus) error
	AddOrderNote(ctx context.Context, orderID uuid.UUID, note string) error
	CreateRefund(ctx context.Context, refund *Refund) error
}

// LegacyCoupon is a gift card stored by older releases as an order coupon
type LegacyCoupon struct {
	Code        string
	ReserveTxID string
}

// LegacyCouponOrder is an order scanned by the v1 migration
type LegacyCouponOrder struct {
	OrderID uuid.UUID
	Coupons []LegacyCoupon
}

// LegacyItemMetaOrder is an order scanned by the v2 migration
type LegacyItemMetaOrder struct {
	OrderID uuid.UUID
	Blob    json.RawMessage
}

// LegacyStore reads the representations written by older releases.
// Scans page over all orders so offsets stay stable while legacy rows are removed.
type LegacyStore interface {
	SchemaVersion(ctx context.Context) (int, error)
	SetSchemaVersion(ctx context.Context, version int) error
	ListCouponOrders(ctx context.Context, limit, offset int) ([]LegacyCouponOrder, error)
	RemoveCoupons(ctx context.Context, orderID uuid.UUID) error
	ListItemMetaOrders(ctx context.Context, limit, offset int) ([]LegacyItemMetaOrder, error)
	DeleteItemMeta(ctx context.Context, orderID uuid.UUID) error
}

// JobQueue schedules a migration batch to run after delay
type JobQueue interface {
	Enqueue(ctx context.Context, job MigrationJob, delay time.Duration) error
}

// ReadAPI is exposed to other consumers and never fails
type ReadAPI interface {
	AppliedCards(ctx context.Context, orderID uuid.UUID) []AppliedCardView
	TotalApplied(ctx context.Context, orderID uuid.UUID) float64
	TotalRefunded(ctx context.Context, orderID uuid.UUID) float64
	CorrectRevenue(ctx context.Context, orderID uuid.UUID, totals RevenueTotals, refund bool) RevenueTotals
}
