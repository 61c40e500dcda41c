// Package orders stores gift card data on host orders in Postgres.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/giftcard-checkout/internal/giftcards"
)

// schemaVersionKey is the settings row holding the gift card data version
const schemaVersionKey = "giftcards_schema_version"

// Repository handles order data access
type Repository struct {
	db Database
}

var (
	_ giftcards.OrderStore  = (*Repository)(nil)
	_ giftcards.LegacyStore = (*Repository)(nil)
	_ Database              = (*pgxpool.Pool)(nil)
)

// NewRepository creates a new orders repository
func NewRepository(db Database) *Repository {
	return &Repository{db: db}
}

// ========================================
// ORDERS
// ========================================

// GetOrder retrieves an order with its gift card document
func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*giftcards.Order, error) {
	query := `
		SELECT id, status, total, currency, gift_cards, gift_cards_revision, created_at
		FROM orders
		WHERE id = $1
	`

	order := &giftcards.Order{}
	var cardsJSON []byte
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&order.ID, &order.Status, &order.Total, &order.Currency,
		&cardsJSON, &order.Revision, &order.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, giftcards.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if len(cardsJSON) > 0 {
		if err := json.Unmarshal(cardsJSON, &order.GiftCards); err != nil {
			return nil, fmt.Errorf("decode gift cards of order %s: %w", orderID, err)
		}
	}
	return order, nil
}

// SaveGiftCards replaces the gift card document when the stored revision still matches
func (r *Repository) SaveGiftCards(ctx context.Context, orderID uuid.UUID, cards []giftcards.AppliedCard, expectedRevision int64) (int64, error) {
	if cards == nil {
		cards = []giftcards.AppliedCard{}
	}
	cardsJSON, err := json.Marshal(cards)
	if err != nil {
		return 0, fmt.Errorf("encode gift cards: %w", err)
	}

	query := `
		UPDATE orders
		SET gift_cards = $1, gift_cards_revision = gift_cards_revision + 1, updated_at = NOW()
		WHERE id = $2 AND gift_cards_revision = $3
		RETURNING gift_cards_revision
	`

	var revision int64
	err = r.db.QueryRow(ctx, query, cardsJSON, orderID, expectedRevision).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		exists, existsErr := r.orderExists(ctx, orderID)
		if existsErr != nil {
			return 0, existsErr
		}
		if !exists {
			return 0, giftcards.ErrOrderNotFound
		}
		return 0, giftcards.ErrRevisionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("save gift cards: %w", err)
	}
	return revision, nil
}

func (r *Repository) orderExists(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order: %w", err)
	}
	return exists, nil
}

// SetOrderTotal updates the order total
func (r *Repository) SetOrderTotal(ctx context.Context, orderID uuid.UUID, total float64) error {
	return r.execOne(ctx, `UPDATE orders SET total = $1, updated_at = NOW() WHERE id = $2`, total, orderID)
}

// UpdateOrderStatus updates the order status
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status giftcards.OrderStatus) error {
	return r.execOne(ctx, `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), orderID)
}

func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return giftcards.ErrOrderNotFound
	}
	return nil
}

// AddOrderNote appends an audit note to the order
func (r *Repository) AddOrderNote(ctx context.Context, orderID uuid.UUID, note string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO order_notes (order_id, note, created_at) VALUES ($1, $2, NOW())`,
		orderID, note,
	)
	if err != nil {
		return fmt.Errorf("add order note: %w", err)
	}
	return nil
}

// CreateRefund records a refund against the order
func (r *Repository) CreateRefund(ctx context.Context, refund *giftcards.Refund) error {
	query := `
		INSERT INTO order_refunds (id, order_id, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query,
		refund.ID, refund.OrderID, refund.Amount, refund.Reason, refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

// ========================================
// LEGACY DATA
// ========================================

// SchemaVersion returns the stored gift card data version, 0 when never set
func (r *Repository) SchemaVersion(ctx context.Context) (int, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, schemaVersionKey).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}

	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}
	return version, nil
}

// SetSchemaVersion stores the gift card data version
func (r *Repository) SetSchemaVersion(ctx context.Context, version int) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, schemaVersionKey, strconv.Itoa(version)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

type couponRow struct {
	Code        string `json:"code"`
	ReserveTxID string `json:"reserve_tx_id"`
}

// ListCouponOrders pages over all orders with the coupons attached to each
func (r *Repository) ListCouponOrders(ctx context.Context, limit, offset int) ([]giftcards.LegacyCouponOrder, error) {
	query := `
		SELECT o.id,
			   COALESCE(
				   json_agg(json_build_object('code', c.code, 'reserve_tx_id', COALESCE(c.reserve_tx_id, '')))
				   FILTER (WHERE c.order_id IS NOT NULL),
				   '[]'
			   )
		FROM (
			SELECT id, created_at FROM orders ORDER BY created_at, id LIMIT $1 OFFSET $2
		) o
		LEFT JOIN legacy_order_coupons c ON c.order_id = o.id
		GROUP BY o.id, o.created_at
		ORDER BY o.created_at, o.id
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list coupon orders: %w", err)
	}
	defer rows.Close()

	orders := []giftcards.LegacyCouponOrder{}
	for rows.Next() {
		var (
			order      giftcards.LegacyCouponOrder
			couponJSON []byte
			coupons    []couponRow
		)
		if err := rows.Scan(&order.OrderID, &couponJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(couponJSON, &coupons); err != nil {
			return nil, fmt.Errorf("decode coupons of order %s: %w", order.OrderID, err)
		}
		for _, c := range coupons {
			order.Coupons = append(order.Coupons, giftcards.LegacyCoupon{Code: c.Code, ReserveTxID: c.ReserveTxID})
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// RemoveCoupons deletes the gift card coupons of an order. Plain discount coupons stay.
func (r *Repository) RemoveCoupons(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM legacy_order_coupons WHERE order_id = $1 AND reserve_tx_id IS NOT NULL AND reserve_tx_id <> ''`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("remove coupons: %w", err)
	}
	return nil
}

// ListItemMetaOrders pages over all orders with their line item gift card blob, nil when absent
func (r *Repository) ListItemMetaOrders(ctx context.Context, limit, offset int) ([]giftcards.LegacyItemMetaOrder, error) {
	query := `
		SELECT o.id, m.gift_cards
		FROM (
			SELECT id, created_at FROM orders ORDER BY created_at, id LIMIT $1 OFFSET $2
		) o
		LEFT JOIN legacy_order_item_meta m ON m.order_id = o.id
		ORDER BY o.created_at, o.id
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list item meta orders: %w", err)
	}
	defer rows.Close()

	orders := []giftcards.LegacyItemMetaOrder{}
	for rows.Next() {
		var (
			order giftcards.LegacyItemMetaOrder
			blob  []byte
		)
		if err := rows.Scan(&order.OrderID, &blob); err != nil {
			return nil, err
		}
		if blob != nil {
			order.Blob = json.RawMessage(blob)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// DeleteItemMeta removes the line item gift card blob of an order
func (r *Repository) DeleteItemMeta(ctx context.Context, orderID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM legacy_order_item_meta WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete item meta: %w", err)
	}
	return nil
}
