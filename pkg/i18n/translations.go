package i18n

// translations maps key → language code → format string.
// Supported languages: en (English), nl (Dutch), de (German).
var translations = map[string]map[string]string{

	// ─── Customer notices ─────────────────────────────────────────────────────
	"giftcard.error.empty_code": {
		"en": "Please enter a valid gift card code",
		"nl": "Vul een geldige cadeaukaartcode in",
		"de": "Bitte geben Sie einen gültigen Geschenkkartencode ein",
	},
	"giftcard.error.not_found": {
		"en": "This gift card does not exist",
		"nl": "Deze cadeaukaart bestaat niet",
		"de": "Diese Geschenkkarte existiert nicht",
	},
	"giftcard.error.already_applied": {
		"en": "This gift card has already been applied",
		"nl": "Deze cadeaukaart is al toegepast",
		"de": "Diese Geschenkkarte wurde bereits eingelöst",
	},
	"giftcard.error.no_balance": {
		"en": "This gift card has no available balance",
		"nl": "Deze cadeaukaart heeft geen beschikbaar saldo",
		"de": "Diese Geschenkkarte hat kein verfügbares Guthaben",
	},
	"giftcard.error.balance_changed": {
		"en": "The balance of one or more gift cards has changed, please review the gift cards before placing the order.",
		"nl": "Het saldo van een of meer cadeaukaarten is gewijzigd, controleer de cadeaukaarten voordat je de bestelling plaatst.",
		"de": "Das Guthaben einer oder mehrerer Geschenkkarten hat sich geändert, bitte prüfen Sie die Geschenkkarten vor der Bestellung.",
	},
	"giftcard.error.unavailable": {
		"en": "Gift cards are temporarily unavailable, please try again",
		"nl": "Cadeaukaarten zijn tijdelijk niet beschikbaar, probeer het opnieuw",
		"de": "Geschenkkarten sind vorübergehend nicht verfügbar, bitte versuchen Sie es erneut",
	},

	// ─── Order audit notes ────────────────────────────────────────────────────
	// %s = masked code, %s = amount, %s = transaction id
	"giftcard.note.reserved": {
		"en": "Gift card %s redeemed for %s (%s)",
		"nl": "Cadeaukaart %s ingewisseld voor %s (%s)",
		"de": "Geschenkkarte %s eingelöst für %s (%s)",
	},
	"giftcard.note.captured": {
		"en": "Gift card %s captured for %s (%s)",
		"nl": "Cadeaukaart %s afgeschreven voor %s (%s)",
		"de": "Geschenkkarte %s abgebucht für %s (%s)",
	},
	"giftcard.note.capture_failed": {
		"en": "Gift card %s could not be captured for %s (%s). Error: %s",
		"nl": "Cadeaukaart %s kon niet worden afgeschreven voor %s (%s). Fout: %s",
		"de": "Geschenkkarte %s konnte nicht abgebucht werden für %s (%s). Fehler: %s",
	},
	"giftcard.note.released": {
		"en": "Gift card %s released for %s (%s)",
		"nl": "Cadeaukaart %s vrijgegeven voor %s (%s)",
		"de": "Geschenkkarte %s freigegeben für %s (%s)",
	},
	"giftcard.note.release_failed": {
		"en": "Gift card %s could not be released for %s (%s). Error: %s",
		"nl": "Cadeaukaart %s kon niet worden vrijgegeven voor %s (%s). Fout: %s",
		"de": "Geschenkkarte %s konnte nicht freigegeben werden für %s (%s). Fehler: %s",
	},
	"giftcard.note.already_released": {
		"en": "Gift card %s was already released for %s (%s). Payment not applied.",
		"nl": "Cadeaukaart %s was al vrijgegeven voor %s (%s). Betaling niet toegepast.",
		"de": "Geschenkkarte %s wurde bereits freigegeben für %s (%s). Zahlung nicht angewendet.",
	},
	// %s = error message
	"giftcard.note.reserve_failed": {
		"en": "Error while redeeming gift cards. Error: %s",
		"nl": "Fout bij het inwisselen van cadeaukaarten. Fout: %s",
		"de": "Fehler beim Einlösen der Geschenkkarten. Fehler: %s",
	},
	"giftcard.note.refunded": {
		"en": "Gift card %s refunded for %s (%s)",
		"nl": "Cadeaukaart %s terugbetaald voor %s (%s)",
		"de": "Geschenkkarte %s erstattet für %s (%s)",
	},
	// %s = total amount, %d = number of cards
	"giftcard.note.refund_summary": {
		"en": "Refunded %s to %d gift card(s)",
		"nl": "%s terugbetaald op %d cadeaukaart(en)",
		"de": "%s auf %d Geschenkkarte(n) erstattet",
	},
	// %s = masked code, %s = amount
	"giftcard.note.migrated": {
		"en": "Gift card %s migrated for %s",
		"nl": "Cadeaukaart %s gemigreerd voor %s",
		"de": "Geschenkkarte %s migriert für %s",
	},
}
