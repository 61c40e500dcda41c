package giftcards

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/i18n"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// notes writes localized audit notes on orders. Failing to write a note never fails the saga.
type notes struct {
	orders OrderStore
	lang   string
}

func (n *notes) add(ctx context.Context, orderID uuid.UUID, key string, args ...interface{}) {
	note := i18n.Translate(key, n.lang, args...)
	if err := n.orders.AddOrderNote(ctx, orderID, note); err != nil {
		logger.WithContext(ctx).Warn("failed to add gift card order note",
			zap.String("order_id", orderID.String()),
			zap.String("note_key", key),
			zap.Error(err),
		)
	}
}

func money(amount float64, currency string) string {
	return i18n.FormatAmount(amount, currency)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
