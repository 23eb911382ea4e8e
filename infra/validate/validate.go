// Package validate registers the custom validation tags used by request
// bodies.
package validate

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/gopos/infra/config"
)

// CustomValidate registers the custom tags on the shared validator.
func CustomValidate() {
	Register(config.App().Validator)
}

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	v := validator.New()
	Register(v)
	return v
}

// Register adds the luhn and cvv tags to v.
func Register(v *validator.Validate) {
	_ = v.RegisterValidation("luhn", func(fl validator.FieldLevel) bool {
		return ValidCardNumber(fl.Field().String())
	})
	_ = v.RegisterValidation("cvv", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return (len(s) == 3 || len(s) == 4) && digitsOnly(s)
	})
}

// ValidCardNumber reports whether number, ignoring spaces and dashes, is
// 12 to 19 digits with a valid Luhn check digit.
func ValidCardNumber(number string) bool {
	pan := strings.NewReplacer(" ", "", "-", "").Replace(number)
	if len(pan) < 12 || len(pan) > 19 || !digitsOnly(pan) {
		return false
	}
	sum := 0
	double := false
	for i := len(pan) - 1; i >= 0; i-- {
		d := int(pan[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func digitsOnly(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
