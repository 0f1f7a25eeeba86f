// Package validate checks request payloads with go-playground/validator and
// reports failures as apperror validation errors.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/redmonkez12/todo-api/internal/apperror"
)

const (
	LocationBody  = "body"
	LocationQuery = "query"
)

// Validator wraps go-playground/validator. Field names in errors come from
// the json (or query) struct tag.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "" {
			tag = fld.Tag.Get("query")
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v}
}

// Body validates a decoded request body.
func (v *Validator) Body(s any) error {
	return v.check(s, LocationBody)
}

// Query validates decoded query parameters.
func (v *Validator) Query(s any) error {
	return v.check(s, LocationQuery)
}

func (v *Validator) check(s any, location string) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("failed to validate %s: %w", location, err)
	}

	// Keep one entry per field, in declaration order.
	fields := make([]apperror.FieldError, 0, len(validationErrors))
	index := make(map[string]int, len(validationErrors))
	for _, fe := range validationErrors {
		name := fe.Field()
		msg := message(fe)
		if i, ok := index[name]; ok {
			fields[i].Messages = append(fields[i].Messages, msg)
			continue
		}
		index[name] = len(fields)
		fields = append(fields, apperror.FieldError{
			Field:    name,
			Location: location,
			Messages: []string{msg},
		})
	}

	return apperror.Validation(fields...)
}

func message(fe validator.FieldError) string {
	field := fmt.Sprintf("%q", fe.Field())

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s length must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s length must be less than or equal to %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return field + " must be a valid uri"
	case "uuid", "uuid4":
		return field + " must be a valid GUID"
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag())
	}
}
