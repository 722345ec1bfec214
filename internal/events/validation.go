package events

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var inputValidations = map[string]validator.Func{
	"event_type": func(fl validator.FieldLevel) bool {
		return ValidType(fl.Field().String())
	},
}

func newInputValidator() (*validator.Validate, error) {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	if err := registerValidations(validate, inputValidations); err != nil {
		return nil, err
	}
	return validate, nil
}

func registerValidations(validate *validator.Validate, validations map[string]validator.Func) error {
	for tag, check := range validations {
		if err := validate.RegisterValidation(tag, check); err != nil {
			return fmt.Errorf("register %q validation: %w", tag, err)
		}
	}
	return nil
}

// FieldErrors maps the offending json fields of an invalid input to messages.
// It returns nil when err carries no field level detail.
func FieldErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	fields := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		name := fieldErr.Field()
		switch fieldErr.Tag() {
		case "required":
			fields[name] = "This field is required"
		case "max":
			fields[name] = fmt.Sprintf("Must be at most %s characters", fieldErr.Param())
		case "min":
			fields[name] = fmt.Sprintf("Must be at least %s", fieldErr.Param())
		case "gte", "lte":
			fields[name] = "Out of range"
		case "gtfield":
			fields[name] = "Must be after start_date"
		case "event_type":
			fields[name] = "Unknown event type"
		default:
			fields[name] = "Invalid value"
		}
	}
	return fields
}
