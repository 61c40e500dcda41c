package giftcards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RefundService refunds the gift card portion of an order by releasing the
// reservations that were never captured
type RefundService struct {
	manager  *Manager
	ledger   LedgerClient
	orders   OrderStore
	notes    *notes
	settings Settings
}

// NewRefundService creates a new refund service
func NewRefundService(manager *Manager, ledger LedgerClient, orders OrderStore, settings Settings) *RefundService {
	settings = settings.withDefaults()
	return &RefundService{
		manager:  manager,
		ledger:   ledger,
		orders:   orders,
		notes:    &notes{orders: orders, lang: settings.NoteLanguage},
		settings: settings,
	}
}

// Refund releases every card with an unrefunded amount. The requested amount must equal
// the full remaining gift card amount. Releases are kept even when the host refund
// cannot be created; the order total is restored and the error returned.
func (s *RefundService) Refund(ctx context.Context, req *RefundRequest) (*RefundReceipt, error) {
	ctx, span := tracer.Start(ctx, "giftcards.Refund", trace.WithAttributes(attribute.String("order_id", req.OrderID.String())))
	defer span.End()

	log := logger.WithContext(ctx).With(zap.String("order_id", req.OrderID.String()))

	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	currency := order.Currency
	if currency == "" {
		currency = s.settings.Currency
	}

	var involved []AppliedCard
	var remaining int64
	for _, card := range order.GiftCards {
		if card.ReservationTxID == nil {
			continue
		}
		if card.CaptureTxID != nil {
			return nil, fmt.Errorf("%w: %s", ErrCardCaptured, card.MaskedCode)
		}
		if card.ReleaseTxID != nil || card.RemainingCents() == 0 {
			continue
		}
		involved = append(involved, card)
		remaining += card.RemainingCents()
	}

	for _, card := range involved {
		tx, err := s.ledger.GetTransaction(ctx, *card.ReservationTxID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerLookup, err)
		}
		switch tx.Status {
		case TransactionPending:
		case TransactionReleased:
			return nil, fmt.Errorf("%w: %s", ErrCardReleased, card.MaskedCode)
		default:
			return nil, fmt.Errorf("%w: %s", ErrCardCaptured, card.MaskedCode)
		}
	}

	if remaining == 0 {
		return nil, ErrNothingToRefund
	}
	if toCents(req.Amount) != remaining {
		return nil, fmt.Errorf("%w: the refund should be %s", ErrRefundAmountMismatch, money(fromCents(remaining), currency))
	}

	receipt := &RefundReceipt{
		RefundID:  uuid.New(),
		OrderID:   req.OrderID,
		CreatedAt: time.Now().UTC(),
	}

	var refunded int64
	descriptions := make([]string, 0, len(involved))
	for _, card := range involved {
		amount := card.RemainingCents()
		tx, err := s.ledger.Release(ctx, *card.ReservationTxID)
		if err != nil {
			recordTransition("refund", outcomeFailure)
			log.Error("gift card refund release failed",
				zap.String("card_id", card.ID),
				zap.Int64("released_cents", refunded),
				zap.Error(err),
			)
			s.notes.add(ctx, req.OrderID, "giftcard.note.release_failed", card.MaskedCode, money(fromCents(amount), currency), *card.ReservationTxID, err.Error())
			return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}

		releaseID := tx.ID
		updated, err := s.manager.updateCard(ctx, req.OrderID, card.ID, func(c *AppliedCard) bool {
			if c.IsTerminal() {
				return false
			}
			c.ReleaseTxID = strPtr(releaseID)
			c.AmountRefunded = fromCents(toCents(c.AmountRefunded) + amount)
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("store refund for card %s: %w", card.ID, err)
		}
		if !updated {
			log.Warn("gift card settled by a concurrent request during refund", zap.String("card_id", card.ID))
			continue
		}

		refunded += amount
		recordTransition("refund", outcomeSuccess)
		s.notes.add(ctx, req.OrderID, "giftcard.note.refunded", card.MaskedCode, money(fromCents(amount), currency), releaseID)
		descriptions = append(descriptions, fmt.Sprintf("Refunded %s to gift card %s.", money(fromCents(amount), currency), card.MaskedCode))
	}

	receipt.Amount = fromCents(refunded)
	refund := &Refund{
		ID:        receipt.RefundID,
		OrderID:   req.OrderID,
		Amount:    receipt.Amount,
		Reason:    strings.TrimSpace(req.Reason + " " + strings.Join(descriptions, " ")),
		CreatedAt: receipt.CreatedAt,
	}
	if err := s.createHostRefund(ctx, order, refund); err != nil {
		log.Error("host refund could not be created after gift card release", zap.Error(err))
		return nil, fmt.Errorf("create refund: %w", err)
	}

	s.notes.add(ctx, req.OrderID, "giftcard.note.refund_summary", money(receipt.Amount, currency), len(involved))

	cards, err := s.manager.Durable(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		receipt.Cards = append(receipt.Cards, cards[i].View())
	}

	log.Info("gift card refund completed",
		zap.String("refund_id", receipt.RefundID.String()),
		zap.Float64("amount", receipt.Amount),
	)
	return receipt, nil
}

// createHostRefund creates the host refund, temporarily raising the order total by the
// refunded amount when the host counts gift cards as paid. The total is always restored.
func (s *RefundService) createHostRefund(ctx context.Context, order *Order, refund *Refund) error {
	if !s.settings.RefundTotalIncludesGiftCards {
		return s.orders.CreateRefund(ctx, refund)
	}

	original := order.Total
	if err := s.orders.SetOrderTotal(ctx, order.ID, fromCents(toCents(original)+toCents(refund.Amount))); err != nil {
		return err
	}

	createErr := s.orders.CreateRefund(ctx, refund)

	if err := s.orders.SetOrderTotal(ctx, order.ID, original); err != nil {
		logger.WithContext(ctx).Error("failed to restore order total after refund",
			zap.String("order_id", order.ID.String()),
			zap.Float64("total", original),
			zap.Error(err),
		)
		if createErr == nil {
			return err
		}
	}
	return createErr
}
