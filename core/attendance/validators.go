package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dojo/core"
)

var (
	actionTag  = "attendanceaction"
	actionText = "action must be one of confirm, reject, present, absent, late or checkout"
)

// InitValidators registers the attendance validators on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(actionTag, func(fl validator.FieldLevel) bool {
		return IsValidAction(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, actionTag, actionText)
}
