package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		lang string
		args []interface{}
		want string
	}{
		{"english", "giftcard.error.not_found", "en", nil, "This gift card does not exist"},
		{"dutch", "giftcard.error.not_found", "nl", nil, "Deze cadeaukaart bestaat niet"},
		{"unknown language falls back", "giftcard.error.not_found", "fr", nil, "This gift card does not exist"},
		{"empty language uses default", "giftcard.error.empty_code", "", nil, "Please enter a valid gift card code"},
		{"unknown key returns key", "giftcard.nope", "en", nil, "giftcard.nope"},
		{
			"note with args",
			"giftcard.note.captured", "en",
			[]interface{}{"XXXX - XXXX - XXXX - ABCD", "€10.00", "tx_1"},
			"Gift card XXXX - XXXX - XXXX - ABCD captured for €10.00 (tx_1)",
		},
		{
			"summary in german",
			"giftcard.note.refund_summary", "de",
			[]interface{}{"€5.00", 2},
			"€5.00 auf 2 Geschenkkarte(n) erstattet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Translate(tt.key, tt.lang, tt.args...))
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "€15.50", FormatAmount(15.5, "EUR"))
	assert.Equal(t, "$0.01", FormatAmount(0.01, "USD"))
	assert.Equal(t, "150.00 kr", FormatAmount(150, "SEK"))
	assert.Equal(t, "12.00 XYZ", FormatAmount(12, "XYZ"))
	assert.Equal(t, "-€3.00", FormatAmount(-3, "EUR"))
}

func TestTranslations_AllHaveEnglish(t *testing.T) {
	for key, langs := range translations {
		_, ok := langs[DefaultLang]
		assert.True(t, ok, "missing english translation for %s", key)
	}
}
