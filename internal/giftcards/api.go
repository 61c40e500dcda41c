package giftcards

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// ReadService is the public read API over stored gift cards.
// Every method degrades to an empty result instead of returning an error.
type ReadService struct {
	manager *Manager
}

var _ ReadAPI = (*ReadService)(nil)

// NewReadService creates a new read service
func NewReadService(manager *Manager) *ReadService {
	return &ReadService{manager: manager}
}

// AppliedCards returns the cards stored on the order
func (s *ReadService) AppliedCards(ctx context.Context, orderID uuid.UUID) []AppliedCardView {
	cards := s.load(ctx, orderID)
	views := make([]AppliedCardView, 0, len(cards))
	for i := range cards {
		views = append(views, cards[i].View())
	}
	return views
}

// TotalApplied sums the amounts paid with gift cards
func (s *ReadService) TotalApplied(ctx context.Context, orderID uuid.UUID) float64 {
	return TotalUsed(s.load(ctx, orderID))
}

// TotalRefunded sums the amounts refunded to gift cards
func (s *ReadService) TotalRefunded(ctx context.Context, orderID uuid.UUID) float64 {
	var cents int64
	for _, card := range s.load(ctx, orderID) {
		cents += toCents(card.AmountRefunded)
	}
	return fromCents(cents)
}

// RevenueTotals are the sales figures a host reports for an order or one of its refunds
type RevenueTotals struct {
	TotalSales float64 `json:"total_sales"`
	NetTotal   float64 `json:"net_total"`
}

// CorrectRevenue adds the gift card payments of an order to its reported totals, which
// only reflect the host payment. For a refund it subtracts the gift card refunds instead.
// Orders without gift cards pass through unchanged.
func (s *ReadService) CorrectRevenue(ctx context.Context, orderID uuid.UUID, totals RevenueTotals, refund bool) RevenueTotals {
	cards := s.load(ctx, orderID)
	if len(cards) == 0 {
		return totals
	}

	var delta int64
	for _, card := range cards {
		if refund {
			delta -= toCents(card.AmountRefunded)
		} else {
			delta += toCents(card.AmountUsed)
		}
	}
	return RevenueTotals{
		TotalSales: fromCents(toCents(totals.TotalSales) + delta),
		NetTotal:   fromCents(toCents(totals.NetTotal) + delta),
	}
}

func (s *ReadService) load(ctx context.Context, orderID uuid.UUID) (cards []AppliedCard) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithContext(ctx).Error("panic while reading gift cards",
				zap.String("order_id", orderID.String()),
				zap.Any("panic", r),
			)
			cards = nil
		}
	}()

	cards, err := s.manager.Durable(ctx, orderID)
	if err != nil {
		logger.WithContext(ctx).Warn("failed to read gift cards, returning none",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return nil
	}
	return cards
}
