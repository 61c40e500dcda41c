package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published on the bus.
// NotBefore delays delivery: consumers receiving the event earlier redeliver it later.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	NotBefore *time.Time      `json:"not_before,omitempty"`
	Data      json.RawMessage `json:"data"`

	dedupID string
}

// NewEvent builds an event with data encoded as JSON.
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event data: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Delay marks the event as not deliverable before now+d.
func (e *Event) Delay(d time.Duration) *Event {
	if d > 0 {
		at := time.Now().UTC().Add(d)
		e.NotBefore = &at
	}
	return e
}

// WithDedupID sets the id JetStream deduplicates on in place of the random event id.
// Use it when the same logical message may be published more than once.
func (e *Event) WithDedupID(id string) *Event {
	e.dedupID = id
	return e
}

// MsgID is the JetStream message id of the event.
func (e *Event) MsgID() string {
	if e.dedupID != "" {
		return e.dedupID
	}
	return e.ID
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s event: %w", e.Type, err)
	}
	return nil
}

// ========================================
// SUBJECTS AND PAYLOADS
// ========================================

const (
	SubjectOrderStatusChanged = "orders.status_changed"
	SubjectGiftCardMigration  = "giftcards.migration.batch"

	EventOrderStatusChanged = "order.status_changed"
	EventGiftCardMigration  = "giftcard.migration.batch"
)

// OrderStatusChangedData is published by the host order system on every status transition.
type OrderStatusChangedData struct {
	OrderID    uuid.UUID `json:"order_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
}

// GiftCardMigrationData is one batch of a legacy data migration.
type GiftCardMigrationData struct {
	Version int `json:"version"`
	Offset  int `json:"offset"`
}
