package utils

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// selfRoles are the roles a visitor may pick when signing up.
var selfRoles = map[string]bool{
	"patient":   true,
	"guardian":  true,
	"therapist": true,
}

// RegisterValidators adds the custom binding tags to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = v.RegisterValidation("selfrole", func(fl validator.FieldLevel) bool {
			return selfRoles[fl.Field().String()]
		})
	})
}
