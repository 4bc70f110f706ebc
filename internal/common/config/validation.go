package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LogValidationErrors logs one line per invalid configuration field. Errors that did not come from
// the validator are logged as they are.
func LogValidationErrors(err error) {
	if err == nil {
		return
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		log.Errorf("ConfigError: %s", err)
		return
	}
	for _, fieldErr := range validationErrors {
		field := stripPrefix(fieldErr.Namespace())
		switch fieldErr.Tag() {
		case "required":
			log.Errorf("ConfigError: Field %s is required but was not found", field)
		case "oneof":
			log.Errorf("ConfigError: Field %s is %q but must be one of %s", field, fieldErr.Value(), fieldErr.Param())
		default:
			log.Errorf("ConfigError: Field %s has invalid value %v: %s", field, fieldErr.Value(), fieldErr.Tag())
		}
	}
}

// stripPrefix removes the root struct name from a validator namespace such as Config.Query.Window.
func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
