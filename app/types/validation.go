package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags and flattens the first failures into
// one readable error.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, describeFieldError(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := lowerFirst(fe.StructNamespace())
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	field = lowerFirst(field)

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func lowerFirst(v string) string {
	if v == "" {
		return v
	}
	return strings.ToLower(v[:1]) + v[1:]
}
