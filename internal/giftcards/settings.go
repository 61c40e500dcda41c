package giftcards

import "time"

const (
	// LatestSchemaVersion is the gift card document version written by this release
	LatestSchemaVersion = 2

	defaultMigrationBatchSize = 75
)

// Settings configures the gift card services
type Settings struct {
	Currency     string
	NoteLanguage string
	// RefundTotalIncludesGiftCards raises the order total by the refunded gift card amount
	// while the host refund is created and restores it afterwards.
	RefundTotalIncludesGiftCards bool
	MigrationBatchSize           int
	MigrationBatchDelay          time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Currency == "" {
		s.Currency = "EUR"
	}
	if s.NoteLanguage == "" {
		s.NoteLanguage = "en"
	}
	if s.MigrationBatchSize <= 0 {
		s.MigrationBatchSize = defaultMigrationBatchSize
	}
	return s
}
