package giftcards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderService drives the reservation saga: reserve at submit, capture on completion,
// release when the order dies
type OrderService struct {
	manager  *Manager
	ledger   LedgerClient
	orders   OrderStore
	notes    *notes
	settings Settings
}

// NewOrderService creates a new order service
func NewOrderService(manager *Manager, ledger LedgerClient, orders OrderStore, settings Settings) *OrderService {
	settings = settings.withDefaults()
	return &OrderService{
		manager:  manager,
		ledger:   ledger,
		orders:   orders,
		notes:    &notes{orders: orders, lang: settings.NoteLanguage},
		settings: settings,
	}
}

// ========================================
// CHECKOUT
// ========================================

// Revalidate re-fetches every applied card before checkout. When a balance moved the
// cards are reallocated and ErrBalanceChanged asks the customer to review them.
func (s *OrderService) Revalidate(ctx context.Context, sessionID string) error {
	state, err := s.manager.sessions.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if len(state.Cards) == 0 {
		return nil
	}

	changed := false
	for i := range state.Cards {
		card := &state.Cards[i]
		remote, err := s.ledger.GetCard(ctx, card.Code)
		if err != nil {
			if errors.Is(err, ErrCardNotFound) {
				return ErrCardNotFound
			}
			return fmt.Errorf("%w: %v", ErrLedgerLookup, err)
		}
		if remote.Balance != toCents(card.Balance) {
			logger.WithContext(ctx).Info("gift card balance changed before checkout",
				zap.String("card_id", card.ID),
				zap.Float64("cached_balance", card.Balance),
				zap.Float64("ledger_balance", fromCents(remote.Balance)),
			)
			card.Balance = fromCents(remote.Balance)
			changed = true
		}
	}

	if state.OriginalTotal != nil {
		state.Cards = Allocate(state.Cards, *state.OriginalTotal)
	}
	if err := s.manager.sessions.Save(ctx, sessionID, state); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if changed {
		return ErrBalanceChanged
	}
	return nil
}

// Submit reserves every applied card for the order, stores the cards on the order and
// destroys the session. If any reservation fails, the reservations made so far are
// released, nothing is stored and the error is returned. Submitting an order that
// already carries gift cards is a no-op.
func (s *OrderService) Submit(ctx context.Context, sessionID string, orderID uuid.UUID) ([]AppliedCard, error) {
	ctx, span := tracer.Start(ctx, "giftcards.Submit", trace.WithAttributes(attribute.String("order_id", orderID.String())))
	defer span.End()

	log := logger.WithContext(ctx).With(zap.String("order_id", orderID.String()))

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.GiftCards) > 0 {
		log.Info("order already carries gift cards, skipping submit")
		return order.GiftCards, nil
	}

	state, err := s.manager.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(state.Cards) == 0 {
		return []AppliedCard{}, nil
	}

	// a retried checkout of a failed order starts over as pending
	if order.Status == OrderStatusFailed {
		if err := s.orders.UpdateOrderStatus(ctx, orderID, OrderStatusPending); err != nil {
			return nil, fmt.Errorf("reset failed order: %w", err)
		}
	}

	currency := s.currency(order)
	cards := make([]AppliedCard, len(state.Cards))
	copy(cards, state.Cards)

	var reserved []int
	for i := range cards {
		card := &cards[i]
		if toCents(card.AmountUsed) <= 0 {
			continue
		}

		tx, err := s.ledger.Reserve(ctx, ReserveRequest{
			Code:           card.Code,
			AmountCents:    toCents(card.AmountUsed),
			Currency:       currency,
			Capture:        false,
			IdempotencyKey: fmt.Sprintf("%s:%s", orderID, card.ID),
		})
		if err != nil {
			recordTransition("reserve", outcomeFailure)
			log.Error("gift card reservation failed, compensating",
				zap.String("card_id", card.ID),
				zap.Int("reserved", len(reserved)),
				zap.Error(err),
			)
			s.compensate(ctx, orderID, cards, reserved, currency)
			s.notes.add(ctx, orderID, "giftcard.note.reserve_failed", err.Error())
			return nil, fmt.Errorf("%w: %v", ErrReservationFailed, err)
		}

		recordTransition("reserve", outcomeSuccess)
		card.ReservationTxID = strPtr(tx.ID)
		reserved = append(reserved, i)
		s.notes.add(ctx, orderID, "giftcard.note.reserved", card.MaskedCode, money(card.AmountUsed, currency), tx.ID)
	}

	if err := s.manager.SnapshotToDurable(ctx, orderID, cards); err != nil {
		log.Error("failed to store reserved gift cards, compensating",
			zap.Int("reserved", len(reserved)),
			zap.Error(err),
		)
		s.compensate(ctx, orderID, cards, reserved, currency)
		s.notes.add(ctx, orderID, "giftcard.note.reserve_failed", err.Error())
		return nil, fmt.Errorf("store gift cards on order: %w", err)
	}

	if state.OriginalTotal != nil {
		total := totalAfterGiftCards(*state.OriginalTotal, TotalUsed(cards))
		if err := s.orders.SetOrderTotal(ctx, orderID, total); err != nil {
			log.Warn("failed to set order total after gift cards", zap.Error(err))
		}
	}

	if err := s.manager.DestroySession(ctx, sessionID); err != nil {
		log.Warn("failed to destroy gift card session", zap.Error(err))
	}

	log.Info("gift cards reserved for order", zap.Int("cards", len(reserved)))
	return s.manager.Durable(ctx, orderID)
}

// compensate releases the reservations made by a failed submit. Failures are only noted.
func (s *OrderService) compensate(ctx context.Context, orderID uuid.UUID, cards []AppliedCard, reserved []int, currency string) {
	for _, i := range reserved {
		card := cards[i]
		txID := deref(card.ReservationTxID)
		release, err := s.ledger.Release(ctx, txID)
		if err != nil {
			recordTransition("compensate", outcomeFailure)
			logger.WithContext(ctx).Error("failed to release reservation during compensation",
				zap.String("order_id", orderID.String()),
				zap.String("card_id", card.ID),
				zap.String("tx_id", txID),
				zap.Error(err),
			)
			s.notes.add(ctx, orderID, "giftcard.note.release_failed", card.MaskedCode, money(card.AmountUsed, currency), txID, err.Error())
			continue
		}
		recordTransition("compensate", outcomeSuccess)
		s.notes.add(ctx, orderID, "giftcard.note.released", card.MaskedCode, money(card.AmountUsed, currency), release.ID)
	}
}

// ========================================
// STATUS TRANSITIONS
// ========================================

// HandleStatusChange runs the transition mapped to status. Ledger failures are reported
// in the result and noted on the order; only storage errors are returned.
func (s *OrderService) HandleStatusChange(ctx context.Context, orderID uuid.UUID, status OrderStatus) (*TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "giftcards.HandleStatusChange", trace.WithAttributes(
		attribute.String("order_id", orderID.String()),
		attribute.String("status", string(status)),
	))
	defer span.End()

	switch TransitionFor(status) {
	case TransitionCapture:
		return s.Capture(ctx, orderID)
	case TransitionRelease:
		return s.Release(ctx, orderID)
	default:
		return &TransitionResult{OrderID: orderID, Transition: TransitionNone}, nil
	}
}

// Capture captures every reserved card that is not captured or released yet
func (s *OrderService) Capture(ctx context.Context, orderID uuid.UUID) (*TransitionResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{OrderID: orderID, Transition: TransitionCapture}
	currency := s.currency(order)

	for _, card := range order.GiftCards {
		switch {
		case card.ReservationTxID == nil || card.CaptureTxID != nil:
			result.Skipped++
			recordTransition("capture", outcomeSkipped)
			continue
		case card.ReleaseTxID != nil:
			result.Skipped++
			recordTransition("capture", outcomeSkipped)
			s.notes.add(ctx, orderID, "giftcard.note.already_released", card.MaskedCode, money(card.AmountUsed, currency), *card.ReleaseTxID)
			continue
		}

		result.Attempted++
		reservation := *card.ReservationTxID
		tx, err := s.ledger.Capture(ctx, reservation)
		if err != nil {
			result.Failed++
			recordTransition("capture", outcomeFailure)
			logger.WithContext(ctx).Error("gift card capture failed",
				zap.String("order_id", orderID.String()),
				zap.String("card_id", card.ID),
				zap.String("tx_id", reservation),
				zap.Error(err),
			)
			s.notes.add(ctx, orderID, "giftcard.note.capture_failed", card.MaskedCode, money(card.AmountUsed, currency), reservation, err.Error())
			continue
		}

		captureID := tx.ID
		updated, err := s.manager.updateCard(ctx, orderID, card.ID, func(c *AppliedCard) bool {
			if c.IsTerminal() {
				return false
			}
			c.CaptureTxID = strPtr(captureID)
			return true
		})
		if err != nil {
			return result, fmt.Errorf("store capture for card %s: %w", card.ID, err)
		}
		if !updated {
			s.concurrentlySettled(ctx, orderID, card.ID, "capture")
			result.Skipped++
			continue
		}

		result.Succeeded++
		recordTransition("capture", outcomeSuccess)
		s.notes.add(ctx, orderID, "giftcard.note.captured", card.MaskedCode, money(card.AmountUsed, currency), captureID)
	}

	return result, nil
}

// Release releases every reserved card that is not captured or released yet
func (s *OrderService) Release(ctx context.Context, orderID uuid.UUID) (*TransitionResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &TransitionResult{OrderID: orderID, Transition: TransitionRelease}
	currency := s.currency(order)

	for _, card := range order.GiftCards {
		if card.ReservationTxID == nil || card.IsTerminal() {
			result.Skipped++
			recordTransition("release", outcomeSkipped)
			continue
		}

		result.Attempted++
		reservation := *card.ReservationTxID
		tx, err := s.ledger.Release(ctx, reservation)
		if err != nil {
			result.Failed++
			recordTransition("release", outcomeFailure)
			logger.WithContext(ctx).Error("gift card release failed",
				zap.String("order_id", orderID.String()),
				zap.String("card_id", card.ID),
				zap.String("tx_id", reservation),
				zap.Error(err),
			)
			s.notes.add(ctx, orderID, "giftcard.note.release_failed", card.MaskedCode, money(card.AmountUsed, currency), reservation, err.Error())
			continue
		}

		releaseID := tx.ID
		updated, err := s.manager.updateCard(ctx, orderID, card.ID, func(c *AppliedCard) bool {
			if c.IsTerminal() {
				return false
			}
			c.ReleaseTxID = strPtr(releaseID)
			c.AmountRefunded = c.AmountUsed
			return true
		})
		if err != nil {
			return result, fmt.Errorf("store release for card %s: %w", card.ID, err)
		}
		if !updated {
			s.concurrentlySettled(ctx, orderID, card.ID, "release")
			result.Skipped++
			continue
		}

		result.Succeeded++
		recordTransition("release", outcomeSuccess)
		s.notes.add(ctx, orderID, "giftcard.note.released", card.MaskedCode, money(card.AmountUsed, currency), releaseID)
	}

	return result, nil
}

// Summary returns the admin view of the gift card payments on an order
func (s *OrderService) Summary(ctx context.Context, orderID uuid.UUID) (*OrderSummary, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	summary := &OrderSummary{
		OrderID:  orderID,
		Currency: s.currency(order),
		Cards:    make([]AppliedCardView, 0, len(order.GiftCards)),
	}
	var used, refunded int64
	for i := range order.GiftCards {
		card := &order.GiftCards[i]
		used += toCents(card.AmountUsed)
		refunded += toCents(card.AmountRefunded)
		summary.Cards = append(summary.Cards, card.View())
	}
	summary.GiftCardTotal = fromCents(used)
	summary.GiftCardRefunded = fromCents(refunded)
	summary.AvailableToRefund = fromCents(used - refunded)
	return summary, nil
}

func (s *OrderService) concurrentlySettled(ctx context.Context, orderID uuid.UUID, cardID, operation string) {
	recordTransition(operation, outcomeSkipped)
	logger.WithContext(ctx).Warn("gift card settled by a concurrent request, keeping stored linkage",
		zap.String("order_id", orderID.String()),
		zap.String("card_id", cardID),
		zap.String("operation", operation),
	)
}

func (s *OrderService) currency(order *Order) string {
	if order.Currency != "" {
		return order.Currency
	}
	return s.settings.Currency
}
