package giftcards

import (
	"context"
	"fmt"

	"github.com/richxcame/giftcard-checkout/pkg/eventbus"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.uber.org/zap"
)

// EventHandler reacts to host order status changes and runs migration batches
type EventHandler struct {
	orders   *OrderService
	migrator *Migrator
}

// NewEventHandler creates an event handler
func NewEventHandler(orders *OrderService, migrator *Migrator) *EventHandler {
	return &EventHandler{orders: orders, migrator: migrator}
}

// RegisterSubscriptions subscribes to order status changes and migration batches
func (h *EventHandler) RegisterSubscriptions(ctx context.Context, bus *eventbus.Bus) error {
	if err := bus.Subscribe(ctx, eventbus.SubjectOrderStatusChanged, "giftcards-order-status", h.handleOrderStatusChanged); err != nil {
		return fmt.Errorf("subscribe to %s: %w", eventbus.SubjectOrderStatusChanged, err)
	}
	if err := bus.Subscribe(ctx, eventbus.SubjectGiftCardMigration, "giftcards-migration", h.handleMigrationBatch); err != nil {
		return fmt.Errorf("subscribe to %s: %w", eventbus.SubjectGiftCardMigration, err)
	}
	logger.Info("giftcards: subscribed to order status and migration events")
	return nil
}

func (h *EventHandler) handleOrderStatusChanged(ctx context.Context, event *eventbus.Event) error {
	if event.Type != eventbus.EventOrderStatusChanged {
		logger.WithContext(ctx).Debug("giftcards: ignoring event", zap.String("type", event.Type))
		return nil
	}

	var data eventbus.OrderStatusChangedData
	if err := event.Decode(&data); err != nil {
		return err
	}

	status := OrderStatus(data.ToStatus)
	result, err := h.orders.HandleStatusChange(ctx, data.OrderID, status)
	if err != nil {
		logger.WithContext(ctx).Error("giftcards: order status transition failed",
			zap.String("order_id", data.OrderID.String()),
			zap.String("status", data.ToStatus),
			zap.Error(err),
		)
		return fmt.Errorf("handle status %s: %w", data.ToStatus, err)
	}

	if result.Transition != TransitionNone {
		logger.WithContext(ctx).Info("giftcards: order status transition processed",
			zap.String("order_id", data.OrderID.String()),
			zap.String("status", data.ToStatus),
			zap.String("transition", string(result.Transition)),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}
	return nil
}

func (h *EventHandler) handleMigrationBatch(ctx context.Context, event *eventbus.Event) error {
	if event.Type != eventbus.EventGiftCardMigration {
		return nil
	}

	var data eventbus.GiftCardMigrationData
	if err := event.Decode(&data); err != nil {
		return err
	}
	return h.migrator.Run(ctx, MigrationJob{Version: data.Version, Offset: data.Offset})
}
