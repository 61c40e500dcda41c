package giftcards

import (
	"context"
	"fmt"
	"time"

	"github.com/richxcame/giftcard-checkout/pkg/eventbus"
)

// publisher is the part of the event bus the job queue needs
type publisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}

// BusJobQueue schedules migration batches as delayed events on the bus
type BusJobQueue struct {
	bus    publisher
	source string
}

var _ JobQueue = (*BusJobQueue)(nil)

// NewBusJobQueue creates a job queue publishing from source
func NewBusJobQueue(bus publisher, source string) *BusJobQueue {
	return &BusJobQueue{bus: bus, source: source}
}

// Enqueue publishes the job, deliverable after delay
func (q *BusJobQueue) Enqueue(ctx context.Context, job MigrationJob, delay time.Duration) error {
	event, err := eventbus.NewEvent(eventbus.EventGiftCardMigration, q.source, eventbus.GiftCardMigrationData{
		Version: job.Version,
		Offset:  job.Offset,
	})
	if err != nil {
		return err
	}
	event.Delay(delay).WithDedupID(migrationJobID(job))
	if err := q.bus.Publish(ctx, eventbus.SubjectGiftCardMigration, event); err != nil {
		return fmt.Errorf("enqueue migration v%d offset %d: %w", job.Version, job.Offset, err)
	}
	return nil
}

// migrationJobID is the dedup id of a batch; one batch is published at most once per dedup window
func migrationJobID(job MigrationJob) string {
	return fmt.Sprintf("giftcards-migration:v%d:%d", job.Version, job.Offset)
}
