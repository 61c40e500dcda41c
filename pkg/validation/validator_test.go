package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type applyRequest struct {
	Code string `json:"code" validate:"required,giftcode"`
}

type refundRequest struct {
	Amount float64 `json:"amount" validate:"gt=0,money"`
	Status string  `json:"status" validate:"omitempty,order_status"`
}

func TestNormalizeGiftCode(t *testing.T) {
	tests := map[string]string{
		"abcd-efgh-ijkl-mnop":    "ABCDEFGHIJKLMNOP",
		"  abcd efgh ijkl mnop ": "ABCDEFGHIJKLMNOP",
		"AB_CD":                  "ABCD",
		"":                       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeGiftCode(in), in)
	}
}

func TestValidateStruct_GiftCode(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"ABCD-EFGH-IJKL-MNOP", false},
		{"abcd1234", false},
		{"", true},
		{"AB", true},
		{"ABCD!EFGH", true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ValidateStruct(&applyRequest{Code: tt.code})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			_, ok := verr.Errors["code"]
			assert.True(t, ok)
		})
	}
}

func TestValidateStruct_Money(t *testing.T) {
	assert.NoError(t, ValidateStruct(&refundRequest{Amount: 12.5}))
	assert.NoError(t, ValidateStruct(&refundRequest{Amount: 0.1 + 0.2}))
	assert.Error(t, ValidateStruct(&refundRequest{Amount: 0}))
	assert.Error(t, ValidateStruct(&refundRequest{Amount: 1.234}))
}

func TestValidateStruct_OrderStatus(t *testing.T) {
	assert.NoError(t, ValidateStruct(&refundRequest{Amount: 1, Status: "completed"}))

	err := ValidateStruct(&refundRequest{Amount: 1, Status: "shipped"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "status must be a valid order status", verr.Errors["status"])
}

func TestValidationError_ErrorIsSorted(t *testing.T) {
	verr := &ValidationError{}
	verr.AddError("code", "bad")
	verr.AddError("amount", "worse")

	assert.True(t, verr.HasErrors())
	assert.Equal(t, "amount: worse; code: bad", verr.Error())
}
