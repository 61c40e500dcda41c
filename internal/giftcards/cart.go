package giftcards

import (
	"context"
	"errors"
	"fmt"

	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// CartService keeps applied gift cards in sync with the cart total
type CartService struct {
	manager *Manager
	ledger  LedgerClient
}

// NewCartService creates a new cart service
func NewCartService(manager *Manager, ledger LedgerClient) *CartService {
	return &CartService{manager: manager, ledger: ledger}
}

// ApplyCode looks the code up on the ledger and applies the card to the session
func (s *CartService) ApplyCode(ctx context.Context, sessionID, code string) (*AppliedCard, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	remote, err := s.ledger.GetCard(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerLookup, err)
	}

	applied, err := s.manager.Has(ctx, sessionID, remote.ID)
	if err != nil {
		return nil, err
	}
	if applied {
		return nil, ErrAlreadyApplied
	}
	if !remote.IsRedeemable || remote.Balance <= 0 {
		return nil, ErrNotRedeemable
	}

	card := AppliedCard{
		ID:         remote.ID,
		Code:       code,
		MaskedCode: MaskCode(code),
		Balance:    fromCents(remote.Balance),
	}
	if err := s.manager.Apply(ctx, sessionID, card); err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("gift card applied to cart",
		zap.String("card_id", card.ID),
		zap.Float64("balance", card.Balance),
	)
	return &card, nil
}

// RemoveCard removes a card from the session
func (s *CartService) RemoveCard(ctx context.Context, sessionID, cardID string) error {
	return s.manager.Remove(ctx, sessionID, cardID)
}

// ClearSession forgets every applied card, e.g. when the cart is emptied
func (s *CartService) ClearSession(ctx context.Context, sessionID string) error {
	return s.manager.DestroySession(ctx, sessionID)
}

// Recalculate reallocates the cards over originalTotal, the cart total before gift cards.
// It must run after every other total adjustment and is idempotent for the same input.
func (s *CartService) Recalculate(ctx context.Context, sessionID string, originalTotal float64) (*CartTotals, error) {
	originalTotal = roundMoney(originalTotal)
	totals := &CartTotals{
		OriginalTotal: originalTotal,
		Total:         originalTotal,
		Cards:         []AppliedCard{},
	}

	state, err := s.manager.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(state.Cards) == 0 {
		return totals, nil
	}

	state.OriginalTotal = &originalTotal
	state.Cards = Allocate(state.Cards, originalTotal)
	if err := s.manager.sessions.Save(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	used := TotalUsed(state.Cards)
	totals.GiftCardTotal = used
	totals.Total = totalAfterGiftCards(originalTotal, used)
	totals.Cards = state.Cards
	return totals, nil
}

func totalAfterGiftCards(total, used float64) float64 {
	remaining := toCents(total) - toCents(used)
	if remaining < 0 {
		return 0
	}
	return fromCents(remaining)
}

// Balance looks a code up on the ledger without applying it
func (s *CartService) Balance(ctx context.Context, code string) (*BalanceInfo, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	remote, err := s.ledger.GetCard(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerLookup, err)
	}

	return &BalanceInfo{
		MaskedCode:   MaskCode(code),
		Balance:      fromCents(remote.Balance),
		Currency:     remote.Currency,
		ExpiresAt:    remote.ExpiresAt,
		IsRedeemable: remote.IsRedeemable,
	}, nil
}
