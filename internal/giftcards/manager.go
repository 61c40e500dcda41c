package giftcards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

const maxRevisionRetries = 5

// Manager keeps the applied cards of a cart session and of a submitted order
type Manager struct {
	sessions SessionStore
	orders   OrderStore
}

// NewManager creates a new card manager
func NewManager(sessions SessionStore, orders OrderStore) *Manager {
	return &Manager{sessions: sessions, orders: orders}
}

// ========================================
// SESSION SCOPE
// ========================================

// Apply appends a card to the session. Applying a card twice is rejected.
func (m *Manager) Apply(ctx context.Context, sessionID string, card AppliedCard) error {
	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if findCard(state.Cards, card.ID) >= 0 {
		return ErrAlreadyApplied
	}

	if card.MaskedCode == "" {
		card.MaskedCode = MaskCode(card.Code)
	}
	card.Balance = roundMoney(card.Balance)
	card.AmountUsed = roundMoney(card.AmountUsed)
	state.Cards = append(state.Cards, card)

	return m.sessions.Save(ctx, sessionID, state)
}

// Remove drops a card from the session; absent cards are ignored
func (m *Manager) Remove(ctx context.Context, sessionID, cardID string) error {
	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	idx := findCard(state.Cards, cardID)
	if idx < 0 {
		return nil
	}
	state.Cards = append(state.Cards[:idx], state.Cards[idx+1:]...)
	return m.sessions.Save(ctx, sessionID, state)
}

// HasAny reports whether the session has applied cards
func (m *Manager) HasAny(ctx context.Context, sessionID string) (bool, error) {
	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	return len(state.Cards) > 0, nil
}

// Has reports whether cardID is applied in the session
func (m *Manager) Has(ctx context.Context, sessionID, cardID string) (bool, error) {
	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	return findCard(state.Cards, cardID) >= 0, nil
}

// Cards returns the session cards in application order
func (m *Manager) Cards(ctx context.Context, sessionID string) ([]AppliedCard, error) {
	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return state.Cards, nil
}

// Reallocate spreads orderTotal over the session cards and stores the result
func (m *Manager) Reallocate(ctx context.Context, sessionID string, orderTotal float64) ([]AppliedCard, error) {
	state, err := m.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(state.Cards) == 0 {
		return nil, nil
	}

	state.Cards = Allocate(state.Cards, orderTotal)
	if err := m.sessions.Save(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return state.Cards, nil
}

// DestroySession drops the session cards and the stored original total
func (m *Manager) DestroySession(ctx context.Context, sessionID string) error {
	return m.sessions.Delete(ctx, sessionID)
}

// Allocate assigns the order total to cards in application order. Each card covers
// min(balance, remaining); cards after the total is covered get zero. The input is not modified.
func Allocate(cards []AppliedCard, orderTotal float64) []AppliedCard {
	out := make([]AppliedCard, len(cards))
	copy(out, cards)

	remaining := toCents(orderTotal)
	for i := range out {
		used := int64(0)
		if remaining > 0 {
			used = toCents(out[i].Balance)
			if used > remaining {
				used = remaining
			}
			if used < 0 {
				used = 0
			}
		}
		out[i].AmountUsed = fromCents(used)
		remaining -= used
	}
	return out
}

// TotalUsed sums AmountUsed over cards
func TotalUsed(cards []AppliedCard) float64 {
	var cents int64
	for i := range cards {
		cents += toCents(cards[i].AmountUsed)
	}
	return fromCents(cents)
}

// ========================================
// ORDER SCOPE
// ========================================

// SnapshotToDurable stores cards on the order with raw codes replaced by masked codes.
// Cards already on the order keep their linkage.
func (m *Manager) SnapshotToDurable(ctx context.Context, orderID uuid.UUID, cards []AppliedCard) error {
	for attempt := 0; attempt < maxRevisionRetries; attempt++ {
		order, err := m.orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}

		merged := make([]AppliedCard, 0, len(order.GiftCards)+len(cards))
		merged = append(merged, order.GiftCards...)
		for _, card := range cards {
			if findCard(merged, card.ID) >= 0 {
				continue
			}
			merged = append(merged, card.Scrubbed())
		}

		_, err = m.orders.SaveGiftCards(ctx, orderID, merged, order.Revision)
		if errors.Is(err, ErrRevisionConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("snapshot gift cards for order %s: %w", orderID, ErrRevisionConflict)
}

// Durable returns the cards stored on the order, empty when none
func (m *Manager) Durable(ctx context.Context, orderID uuid.UUID) ([]AppliedCard, error) {
	order, err := m.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.GiftCards == nil {
		return []AppliedCard{}, nil
	}
	return order.GiftCards, nil
}

// updateCard re-reads the order and applies mutate to one card, retrying on revision conflicts.
// mutate returns false when the card no longer needs the change; updateCard then reports false.
func (m *Manager) updateCard(ctx context.Context, orderID uuid.UUID, cardID string, mutate func(*AppliedCard) bool) (bool, error) {
	for attempt := 0; attempt < maxRevisionRetries; attempt++ {
		order, err := m.orders.GetOrder(ctx, orderID)
		if err != nil {
			return false, err
		}

		idx := findCard(order.GiftCards, cardID)
		if idx < 0 {
			return false, fmt.Errorf("card %s not on order %s: %w", cardID, orderID, ErrInconsistentState)
		}
		if !mutate(&order.GiftCards[idx]) {
			return false, nil
		}

		_, err = m.orders.SaveGiftCards(ctx, orderID, order.GiftCards, order.Revision)
		if errors.Is(err, ErrRevisionConflict) {
			logger.WithContext(ctx).Debug("gift card document changed, retrying",
				zap.String("order_id", orderID.String()),
				zap.String("card_id", cardID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("update card %s on order %s: %w", cardID, orderID, ErrRevisionConflict)
}
