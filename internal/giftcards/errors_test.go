package giftcards

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/richxcame/giftcard-checkout/pkg/common"
	"github.com/stretchr/testify/assert"
)

func TestToAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"order not found", ErrOrderNotFound, http.StatusNotFound, "order not found"},
		{"card not found", ErrCardNotFound, http.StatusNotFound, "This gift card does not exist"},
		{"balance changed", ErrBalanceChanged, http.StatusConflict, ErrBalanceChanged.Error()},
		{"already applied", ErrAlreadyApplied, http.StatusBadRequest, "This gift card has already been applied"},
		{"wrapped mismatch", fmt.Errorf("%w: the refund should be €30.00", ErrRefundAmountMismatch), http.StatusBadRequest, "only the full gift card payment can be refunded at once: the refund should be €30.00"},
		{"ledger", fmt.Errorf("%w: timeout", ErrReservationFailed), http.StatusServiceUnavailable, "Gift cards are temporarily unavailable, please try again"},
		{"captured", ErrCardCaptured, http.StatusConflict, ErrCardCaptured.Error()},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "gift card operation failed"},
		{"already an app error", common.NewForbiddenError("nope"), http.StatusForbidden, "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ToAppError(tt.err, "en")
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantMsg, appErr.Message)
		})
	}
}

func TestMessage_Localized(t *testing.T) {
	assert.Equal(t, "Diese Geschenkkarte existiert nicht", Message(ErrCardNotFound, "de"))
	assert.Equal(t, "This gift card does not exist", Message(ErrCardNotFound, "fr"))
	assert.Equal(t, "boom", Message(errors.New("boom"), "de"))
}

func TestErrorClasses(t *testing.T) {
	assert.ErrorIs(t, ErrCardNotFound, ErrValidation)
	assert.ErrorIs(t, fmt.Errorf("%w: x", ErrLedgerLookup), ErrLedgerUnavailable)
	assert.ErrorIs(t, ErrCardReleased, ErrInconsistentState)
	assert.NotErrorIs(t, ErrOrderNotFound, ErrValidation)
}
