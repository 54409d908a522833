package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/raids-lab/staffdesk/dao/model"
)

var validationOnce sync.Once

// RegisterValidations adds the domain enum tags to gin's validator:
// request_status and field_type. Unknown lifecycle actions are not rejected
// here, the engine reports them as invalid transitions.
func RegisterValidations() {
	validationOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("request_status", func(fl validator.FieldLevel) bool {
			return model.RequestStatus(fl.Field().String()).IsValid()
		})
		_ = v.RegisterValidation("field_type", func(fl validator.FieldLevel) bool {
			return model.FieldType(fl.Field().String()).IsValid()
		})
	})
}
