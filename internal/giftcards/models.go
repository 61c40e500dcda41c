package giftcards

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/validation"
)

// CardState is the derived saga state of an applied card
type CardState string

const (
	CardStateApplied  CardState = "applied"
	CardStateReserved CardState = "reserved"
	CardStateCaptured CardState = "captured"
	CardStateReleased CardState = "released"
)

// AppliedCard is one gift card applied to a cart or an order, with its ledger linkage.
// Amounts are in currency units rounded to two decimals.
type AppliedCard struct {
	ID              string  `json:"id"`
	Code            string  `json:"code"`
	MaskedCode      string  `json:"masked_code"`
	Balance         float64 `json:"balance"`
	AmountUsed      float64 `json:"amount_used"`
	AmountRefunded  float64 `json:"amount_refunded"`
	ReservationTxID *string `json:"reservation_tx_id,omitempty"`
	CaptureTxID     *string `json:"capture_tx_id,omitempty"`
	ReleaseTxID     *string `json:"release_tx_id,omitempty"`
}

// State derives the saga state from the transaction ids
func (c *AppliedCard) State() CardState {
	switch {
	case c.CaptureTxID != nil:
		return CardStateCaptured
	case c.ReleaseTxID != nil:
		return CardStateReleased
	case c.ReservationTxID != nil:
		return CardStateReserved
	default:
		return CardStateApplied
	}
}

// IsTerminal reports whether the card was captured or released
func (c *AppliedCard) IsTerminal() bool {
	return c.CaptureTxID != nil || c.ReleaseTxID != nil
}

// RemainingCents is the reserved amount not yet refunded, in cents
func (c *AppliedCard) RemainingCents() int64 {
	remaining := toCents(c.AmountUsed) - toCents(c.AmountRefunded)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Scrubbed returns a copy safe for durable storage: the raw code is replaced by the masked code
func (c AppliedCard) Scrubbed() AppliedCard {
	if c.MaskedCode == "" {
		c.MaskedCode = MaskCode(c.Code)
	}
	c.Code = c.MaskedCode
	return c
}

// View is the public projection of an applied card, without the code
func (c *AppliedCard) View() AppliedCardView {
	return AppliedCardView{
		ID:              c.ID,
		MaskedCode:      c.MaskedCode,
		AmountUsed:      c.AmountUsed,
		AmountRefunded:  c.AmountRefunded,
		ReservationTxID: c.ReservationTxID,
		CaptureTxID:     c.CaptureTxID,
		ReleaseTxID:     c.ReleaseTxID,
		State:           c.State(),
	}
}

// AppliedCardView is what other consumers see of an applied card
type AppliedCardView struct {
	ID              string    `json:"id"`
	MaskedCode      string    `json:"masked_code"`
	AmountUsed      float64   `json:"amount_used"`
	AmountRefunded  float64   `json:"amount_refunded"`
	ReservationTxID *string   `json:"reservation_tx_id"`
	CaptureTxID     *string   `json:"capture_tx_id"`
	ReleaseTxID     *string   `json:"release_tx_id"`
	State           CardState `json:"state"`
}

// SessionState is the ephemeral per-shopper gift card state
type SessionState struct {
	Cards         []AppliedCard `json:"cards"`
	OriginalTotal *float64      `json:"original_total,omitempty"`
}

// ========================================
// ORDERS
// ========================================

// OrderStatus is the host order status
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusOnHold     OrderStatus = "on_hold"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Transition is the saga step triggered by an order status
type Transition string

const (
	TransitionNone    Transition = "none"
	TransitionCapture Transition = "capture"
	TransitionRelease Transition = "release"
)

// TransitionFor maps every order status to exactly one saga transition.
// Refunds are handled by RefundService, not by status changes.
func TransitionFor(status OrderStatus) Transition {
	switch status {
	case OrderStatusCompleted:
		return TransitionCapture
	case OrderStatusCancelled, OrderStatusFailed:
		return TransitionRelease
	default:
		return TransitionNone
	}
}

// Order is the part of the host order the saga reads and writes
type Order struct {
	ID        uuid.UUID     `json:"id"`
	Status    OrderStatus   `json:"status"`
	Total     float64       `json:"total"`
	Currency  string        `json:"currency"`
	GiftCards []AppliedCard `json:"gift_cards"`
	// Revision guards GiftCards against concurrent writers
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
}

// Refund is the host-side refund record
type Refund struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// TransitionResult reports what a capture or release pass did.
// Ledger failures are counted here instead of being returned.
type TransitionResult struct {
	OrderID    uuid.UUID  `json:"order_id"`
	Transition Transition `json:"transition"`
	Attempted  int        `json:"attempted"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
}

// CartTotals is the cart display data after gift cards
type CartTotals struct {
	OriginalTotal float64       `json:"original_total"`
	GiftCardTotal float64       `json:"gift_card_total"`
	Total         float64       `json:"total"`
	Cards         []AppliedCard `json:"cards"`
}

// OrderSummary is the admin view of gift card payments on an order
type OrderSummary struct {
	OrderID           uuid.UUID         `json:"order_id"`
	Currency          string            `json:"currency"`
	GiftCardTotal     float64           `json:"gift_card_total"`
	GiftCardRefunded  float64           `json:"gift_card_refunded"`
	AvailableToRefund float64           `json:"available_to_refund"`
	Cards             []AppliedCardView `json:"cards"`
}

// RefundRequest asks for the gift card portion of an order to be refunded
type RefundRequest struct {
	OrderID uuid.UUID `json:"-"`
	Amount  float64   `json:"amount" validate:"gt=0,money"`
	Reason  string    `json:"reason" validate:"max=500"`
}

// RefundReceipt describes a completed gift card refund
type RefundReceipt struct {
	RefundID  uuid.UUID         `json:"refund_id"`
	OrderID   uuid.UUID         `json:"order_id"`
	Amount    float64           `json:"amount"`
	Cards     []AppliedCardView `json:"cards"`
	CreatedAt time.Time         `json:"created_at"`
}

// BalanceInfo is the public balance lookup result
type BalanceInfo struct {
	MaskedCode   string     `json:"masked_code"`
	Balance      float64    `json:"balance"`
	Currency     string     `json:"currency"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IsRedeemable bool       `json:"is_redeemable"`
}

// MigrationJob is one resumable batch of a legacy migration
type MigrationJob struct {
	Version int `json:"version"`
	Offset  int `json:"offset"`
}

// ========================================
// HELPERS
// ========================================

const maskPrefix = "XXXX - XXXX - XXXX - "

// NormalizeCode strips separators and uppercases a gift card code
func NormalizeCode(code string) string {
	return validation.NormalizeGiftCode(code)
}

// MaskCode keeps the last four characters of a code visible
func MaskCode(code string) string {
	code = NormalizeCode(code)
	if len(code) <= 4 {
		return maskPrefix + code
	}
	return maskPrefix + code[len(code)-4:]
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

func roundMoney(amount float64) float64 {
	return fromCents(toCents(amount))
}

func strPtr(s string) *string {
	return &s
}

func findCard(cards []AppliedCard, cardID string) int {
	for i := range cards {
		if cards[i].ID == cardID {
			return i
		}
	}
	return -1
}
