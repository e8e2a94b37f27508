package config

import (
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance returns the shared validator. Field names in errors
// follow the mapstructure keys.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})

		_ = v.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
			level := fl.Field().String()
			if level == "" {
				return true
			}
			_, err := zerolog.ParseLevel(strings.ToLower(level))
			return err == nil
		})

		_ = v.RegisterValidation("abs_path", func(fl validator.FieldLevel) bool {
			path := fl.Field().String()
			if path == "" {
				return true
			}
			if strings.Contains(path, "\x00") {
				return false
			}
			return filepath.IsAbs(path)
		})

		validateInst = v
	})

	return validateInst
}

