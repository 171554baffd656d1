package subscription

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/trezcool/dojo/core"
)

var (
	frequencyTag  = "frequency"
	frequencyText = "frequency must be one of monthly, annual or one_time"

	invoiceStatusTag  = "invoicestatus"
	invoiceStatusText = "invalid invoice status"

	priceTag  = "price"
	priceText = "price must not be negative"

	endDateTag  = "enddate"
	endDateText = "end date must be after the start date"

	requiredTag = "required"
)

// InitValidators registers the subscription validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(frequencyTag, func(fl validator.FieldLevel) bool {
		return IsValidFrequency(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, frequencyTag, frequencyText)

	_ = validate.RegisterValidation(invoiceStatusTag, func(fl validator.FieldLevel) bool {
		return lo.Contains(InvoiceStatuses, fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, invoiceStatusTag, invoiceStatusText)

	validate.RegisterStructValidation(newSubscriptionValidation, NewSubscription{})
	core.RegisterCustomTranslation(validate, translator, priceTag, priceText)
	core.RegisterCustomTranslation(validate, translator, endDateTag, endDateText)
}

// newSubscriptionValidation checks the billing terms that span several fields.
func newSubscriptionValidation(sl validator.StructLevel) {
	ns, ok := sl.Current().Interface().(NewSubscription)
	if !ok {
		return
	}
	if ns.Price.IsNegative() {
		sl.ReportError(ns.Price, "price", "Price", priceTag, "")
	}
	if ns.EndDate == "" {
		if ns.Frequency == FrequencyMonthly {
			sl.ReportError(ns.EndDate, "end_date", "EndDate", requiredTag, "")
		}
		return
	}
	start, err1 := core.ParseDate(ns.StartDate)
	end, err2 := core.ParseDate(ns.EndDate)
	if err1 == nil && err2 == nil && !end.After(start) {
		sl.ReportError(ns.EndDate, "end_date", "EndDate", endDateTag, "")
	}
}
