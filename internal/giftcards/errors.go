package giftcards

import (
	"errors"

	"github.com/richxcame/giftcard-checkout/pkg/common"
	"github.com/richxcame/giftcard-checkout/pkg/i18n"
)

// Error classes. Every concrete error below unwraps to exactly one of them.
var (
	// ErrValidation is user-correctable and never changes state
	ErrValidation = errors.New("gift card validation failed")
	// ErrLedgerUnavailable is retryable
	ErrLedgerUnavailable = errors.New("gift card service unavailable")
	// ErrInconsistentState is unrecoverable for the requested path
	ErrInconsistentState = errors.New("inconsistent gift card state")
	// ErrMigrationRecord skips one legacy record and continues the batch
	ErrMigrationRecord = errors.New("legacy gift card record could not be migrated")
)

// classError is a concrete error belonging to a class, with a translatable message key
type classError struct {
	class   error
	key     string
	message string
}

func newClassError(class error, key, message string) *classError {
	return &classError{class: class, key: key, message: message}
}

func (e *classError) Error() string { return e.message }
func (e *classError) Unwrap() error { return e.class }

var (
	ErrEmptyCode       = newClassError(ErrValidation, "giftcard.error.empty_code", "Please enter a valid gift card code")
	ErrCardNotFound    = newClassError(ErrValidation, "giftcard.error.not_found", "This gift card does not exist")
	ErrAlreadyApplied  = newClassError(ErrValidation, "giftcard.error.already_applied", "This gift card has already been applied")
	ErrNotRedeemable   = newClassError(ErrValidation, "giftcard.error.no_balance", "This gift card has no available balance")
	ErrBalanceChanged  = newClassError(ErrValidation, "giftcard.error.balance_changed", "The balance of one or more gift cards has changed, please review the gift cards before placing the order.")
	ErrNothingToRefund = newClassError(ErrValidation, "", "no gift card amount left to refund")
	// ErrRefundAmountMismatch is returned when a refund does not cover the full remaining gift card amount
	ErrRefundAmountMismatch = newClassError(ErrValidation, "", "only the full gift card payment can be refunded at once")

	ErrReservationFailed = newClassError(ErrLedgerUnavailable, "giftcard.error.unavailable", "gift cards could not be redeemed")
	ErrLedgerLookup      = newClassError(ErrLedgerUnavailable, "giftcard.error.unavailable", "gift card service lookup failed")

	ErrCardCaptured = newClassError(ErrInconsistentState, "", "gift card has already been captured, so it cannot be refunded")
	ErrCardReleased = newClassError(ErrInconsistentState, "", "gift card reservation was already released by the gift card service")

	ErrOrderNotFound = errors.New("order not found")
	// ErrRevisionConflict is returned by OrderStore when the gift card document changed underneath a writer
	ErrRevisionConflict = errors.New("gift card document revision conflict")
)

// Message returns the customer-facing message for err in lang
func Message(err error, lang string) string {
	var ce *classError
	if errors.As(err, &ce) && ce.key != "" {
		return i18n.Translate(ce.key, lang)
	}
	return err.Error()
}

// ToAppError maps gift card errors onto HTTP errors
func ToAppError(err error, lang string) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrOrderNotFound):
		return common.NewNotFoundError("order not found", err)
	case errors.Is(err, ErrCardNotFound):
		return common.NewNotFoundError(Message(err, lang), err)
	case errors.Is(err, ErrBalanceChanged):
		return common.NewConflictError(Message(err, lang), err)
	case errors.Is(err, ErrValidation):
		return common.NewBadRequestError(Message(err, lang), err)
	case errors.Is(err, ErrLedgerUnavailable):
		return common.NewServiceUnavailableError(Message(err, lang), err)
	case errors.Is(err, ErrInconsistentState):
		return common.NewConflictError(err.Error(), err)
	default:
		return common.NewInternalError("gift card operation failed", err)
	}
}
