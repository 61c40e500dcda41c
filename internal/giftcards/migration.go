package giftcards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/richxcame/giftcard-checkout/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// legacyCouponCodeLength is the length of gift card codes stored as coupons
const legacyCouponCodeLength = 16

// Migrator upgrades gift card data written by older releases, one batch per job.
// Each batch enqueues its successor before processing so a crash resumes at the next offset.
type Migrator struct {
	legacy   LegacyStore
	orders   OrderStore
	ledger   LedgerClient
	queue    JobQueue
	notes    *notes
	settings Settings
}

// NewMigrator creates a new legacy migrator
func NewMigrator(legacy LegacyStore, orders OrderStore, ledger LedgerClient, queue JobQueue, settings Settings) *Migrator {
	settings = settings.withDefaults()
	return &Migrator{
		legacy:   legacy,
		orders:   orders,
		ledger:   ledger,
		queue:    queue,
		notes:    &notes{orders: orders, lang: settings.NoteLanguage},
		settings: settings,
	}
}

// Start enqueues the first batch of the next pending version. It returns nil when the
// schema is already current.
func (m *Migrator) Start(ctx context.Context) (*MigrationJob, error) {
	version, err := m.legacy.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if version >= LatestSchemaVersion {
		return nil, nil
	}

	job := MigrationJob{Version: version + 1, Offset: 0}
	if err := m.queue.Enqueue(ctx, job, 0); err != nil {
		return nil, fmt.Errorf("enqueue migration: %w", err)
	}
	logger.WithContext(ctx).Info("gift card migration scheduled", zap.Int("version", job.Version))
	return &job, nil
}

// Run processes one batch. An empty batch records the version and starts the next one.
func (m *Migrator) Run(ctx context.Context, job MigrationJob) error {
	ctx, span := tracer.Start(ctx, "giftcards.MigrationBatch", trace.WithAttributes(
		attribute.Int("version", job.Version),
		attribute.Int("offset", job.Offset),
	))
	defer span.End()

	log := logger.WithContext(ctx).With(zap.Int("version", job.Version), zap.Int("offset", job.Offset))

	current, err := m.legacy.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= job.Version {
		log.Info("gift card migration already applied, skipping batch")
		return nil
	}
	if job.Version > LatestSchemaVersion || job.Version < 1 {
		return fmt.Errorf("unknown gift card migration version %d", job.Version)
	}

	var orderIDs []uuid.UUID
	var process func(context.Context, int) error

	switch job.Version {
	case 1:
		batch, err := m.legacy.ListCouponOrders(ctx, m.settings.MigrationBatchSize, job.Offset)
		if err != nil {
			return fmt.Errorf("list coupon orders: %w", err)
		}
		for _, o := range batch {
			orderIDs = append(orderIDs, o.OrderID)
		}
		process = func(ctx context.Context, i int) error { return m.migrateCoupons(ctx, batch[i]) }
	case 2:
		batch, err := m.legacy.ListItemMetaOrders(ctx, m.settings.MigrationBatchSize, job.Offset)
		if err != nil {
			return fmt.Errorf("list item meta orders: %w", err)
		}
		for _, o := range batch {
			orderIDs = append(orderIDs, o.OrderID)
		}
		process = func(ctx context.Context, i int) error { return m.migrateItemMeta(ctx, batch[i]) }
	}

	if len(orderIDs) == 0 {
		if err := m.legacy.SetSchemaVersion(ctx, job.Version); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		log.Info("gift card migration finished")
		if job.Version < LatestSchemaVersion {
			return m.queue.Enqueue(ctx, MigrationJob{Version: job.Version + 1}, m.settings.MigrationBatchDelay)
		}
		return nil
	}

	next := MigrationJob{Version: job.Version, Offset: job.Offset + m.settings.MigrationBatchSize}
	if err := m.queue.Enqueue(ctx, next, m.settings.MigrationBatchDelay); err != nil {
		return fmt.Errorf("enqueue next batch: %w", err)
	}

	version := strconv.Itoa(job.Version)
	skipped := 0
	for i, orderID := range orderIDs {
		if err := process(ctx, i); err != nil {
			skipped++
			migratedOrdersTotal.WithLabelValues(version, outcomeSkipped).Inc()
			log.Warn("skipping legacy gift card order",
				zap.String("order_id", orderID.String()),
				zap.Error(err),
			)
			continue
		}
		migratedOrdersTotal.WithLabelValues(version, outcomeSuccess).Inc()
	}

	log.Info("gift card migration batch processed",
		zap.Int("orders", len(orderIDs)),
		zap.Int("skipped", skipped),
	)
	return nil
}

// migrateCoupons turns gift card coupons with a stored reservation into applied cards
func (m *Migrator) migrateCoupons(ctx context.Context, legacy LegacyCouponOrder) error {
	var cards []AppliedCard
	for _, coupon := range legacy.Coupons {
		code := NormalizeCode(coupon.Code)
		if len(code) != legacyCouponCodeLength || coupon.ReserveTxID == "" {
			continue
		}

		remote, err := m.ledger.GetCard(ctx, code)
		if err != nil {
			return fmt.Errorf("%w: card lookup: %v", ErrMigrationRecord, err)
		}
		tx, err := m.ledger.GetTransaction(ctx, coupon.ReserveTxID)
		if err != nil {
			return fmt.Errorf("%w: transaction %s: %v", ErrMigrationRecord, coupon.ReserveTxID, err)
		}

		amount := tx.Amount
		if amount < 0 {
			amount = -amount
		}
		card := AppliedCard{
			ID:              remote.ID,
			Code:            code,
			MaskedCode:      MaskCode(code),
			Balance:         fromCents(amount),
			AmountUsed:      fromCents(amount),
			ReservationTxID: strPtr(tx.ID),
		}
		switch tx.Status {
		case TransactionCaptured:
			card.CaptureTxID = strPtr(tx.ID)
		case TransactionReleased:
			card.ReleaseTxID = strPtr(tx.ID)
			card.AmountRefunded = card.AmountUsed
		}
		cards = append(cards, card)
	}

	if len(cards) == 0 {
		return nil
	}
	if err := m.merge(ctx, legacy.OrderID, cards); err != nil {
		return err
	}
	if err := m.legacy.RemoveCoupons(ctx, legacy.OrderID); err != nil {
		return fmt.Errorf("%w: remove coupons: %v", ErrMigrationRecord, err)
	}
	return nil
}

// legacyItemCard is the line item meta shape written by older releases
type legacyItemCard struct {
	ID                   string  `json:"id"`
	Code                 string  `json:"code"`
	Balance              float64 `json:"balance"`
	AmountUsed           float64 `json:"amount_used"`
	AmountRefunded       float64 `json:"amount_refunded"`
	TransactionIDRedeem  *string `json:"transaction_id_redeem"`
	TransactionIDCapture *string `json:"transaction_id_capture"`
	TransactionIDRelease *string `json:"transaction_id_release"`
}

// migrateItemMeta moves the line item blob onto the order document
func (m *Migrator) migrateItemMeta(ctx context.Context, legacy LegacyItemMetaOrder) error {
	if len(legacy.Blob) == 0 || string(legacy.Blob) == "null" {
		return nil
	}

	var items []legacyItemCard
	if err := json.Unmarshal(legacy.Blob, &items); err != nil {
		return fmt.Errorf("%w: decode item meta: %v", ErrMigrationRecord, err)
	}

	cards := make([]AppliedCard, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("%w: item meta card without id", ErrMigrationRecord)
		}
		capture, release := nonEmpty(item.TransactionIDCapture), nonEmpty(item.TransactionIDRelease)
		if capture != nil && release != nil {
			return fmt.Errorf("%w: card %s is both captured (%s) and released (%s)", ErrMigrationRecord, item.ID, *capture, *release)
		}
		cards = append(cards, AppliedCard{
			ID:              item.ID,
			Code:            item.Code,
			MaskedCode:      MaskCode(item.Code),
			Balance:         roundMoney(item.Balance),
			AmountUsed:      roundMoney(item.AmountUsed),
			AmountRefunded:  roundMoney(item.AmountRefunded),
			ReservationTxID: nonEmpty(item.TransactionIDRedeem),
			CaptureTxID:     capture,
			ReleaseTxID:     release,
		})
	}

	if err := m.merge(ctx, legacy.OrderID, cards); err != nil {
		return err
	}
	if err := m.legacy.DeleteItemMeta(ctx, legacy.OrderID); err != nil {
		return fmt.Errorf("%w: delete item meta: %v", ErrMigrationRecord, err)
	}
	return nil
}

// nonEmpty treats a blank transaction id as absent
func nonEmpty(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

// merge adds cards to the order document. Linkage already on the order wins; legacy
// linkage only fills empty fields.
func (m *Migrator) merge(ctx context.Context, orderID uuid.UUID, cards []AppliedCard) error {
	for attempt := 0; attempt < maxRevisionRetries; attempt++ {
		order, err := m.orders.GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMigrationRecord, err)
		}
		currency := order.Currency
		if currency == "" {
			currency = m.settings.Currency
		}

		merged := append([]AppliedCard{}, order.GiftCards...)
		var added []AppliedCard
		for _, card := range cards {
			idx := findCard(merged, card.ID)
			if idx < 0 {
				merged = append(merged, card.Scrubbed())
				added = append(added, card)
				continue
			}
			fillLinkage(&merged[idx], card)
		}

		_, err = m.orders.SaveGiftCards(ctx, orderID, merged, order.Revision)
		if errors.Is(err, ErrRevisionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMigrationRecord, err)
		}

		for _, card := range added {
			m.notes.add(ctx, orderID, "giftcard.note.migrated", MaskCode(card.Code), money(card.AmountUsed, currency))
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrMigrationRecord, ErrRevisionConflict)
}

func fillLinkage(existing *AppliedCard, legacy AppliedCard) {
	if existing.ReservationTxID == nil {
		existing.ReservationTxID = legacy.ReservationTxID
	}
	if existing.IsTerminal() {
		return
	}
	switch {
	case legacy.CaptureTxID != nil:
		existing.CaptureTxID = legacy.CaptureTxID
	case legacy.ReleaseTxID != nil:
		existing.ReleaseTxID = legacy.ReleaseTxID
		existing.AmountRefunded = existing.AmountUsed
	}
}
