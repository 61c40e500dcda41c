package validation

import (
	"errors"
	"math"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	giftCodePattern = regexp.MustCompile(`^[A-Z0-9]{4,64}$`)
	codeCleaner     = strings.NewReplacer(" ", "", "-", "", "\t", "", "_", "")
)

var orderStatuses = map[string]bool{
	"pending":    true,
	"processing": true,
	"on_hold":    true,
	"completed":  true,
	"cancelled":  true,
	"failed":     true,
	"refunded":   true,
}

// Get returns the shared validator with the custom tags registered.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("giftcode", func(fl validator.FieldLevel) bool {
			return IsGiftCode(fl.Field().String())
		})
		_ = validate.RegisterValidation("money", func(fl validator.FieldLevel) bool {
			return IsMoney(fl.Field().Float())
		})
		_ = validate.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
			return orderStatuses[fl.Field().String()]
		})
	})
	return validate
}

// ValidateStruct validates s and converts validator errors into a ValidationError.
func ValidateStruct(s interface{}) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return NewValidationError(verrs)
	}
	return err
}

// NormalizeGiftCode strips separators and uppercases a customer-entered code.
func NormalizeGiftCode(code string) string {
	return strings.ToUpper(codeCleaner.Replace(strings.TrimSpace(code)))
}

// IsGiftCode reports whether code is a well-formed gift card code once normalized.
func IsGiftCode(code string) bool {
	return giftCodePattern.MatchString(NormalizeGiftCode(code))
}

// IsMoney reports whether amount is non-negative with at most two decimals.
func IsMoney(amount float64) bool {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	cents := amount * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}
