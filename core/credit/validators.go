package credit

import (
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-credits/core"
)

var (
	paymentMethodTag  = "paymentmethod"
	paymentMethodText = "invalid payment method, expected one of: " + strings.Join(PaymentMethods, ", ")

	sortedPaymentMethods = sortPaymentMethods()
)

func sortPaymentMethods() []string {
	methods := make([]string, len(PaymentMethods))
	copy(methods, PaymentMethods)
	sort.Strings(methods)
	return methods
}

// InitValidators registers the credit validators on `validate`.
// core.InitValidators must have been called on the same validator first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(paymentMethodTag, paymentMethodValidation)
	core.RegisterCustomTranslation(validate, translator, paymentMethodTag, paymentMethodText)
}

// paymentMethodValidation checks that the payment method is one of PaymentMethods
func paymentMethodValidation(fl validator.FieldLevel) bool {
	method := fl.Field().String()
	idx := sort.SearchStrings(sortedPaymentMethods, method)
	return idx < len(sortedPaymentMethods) && sortedPaymentMethods[idx] == method
}
