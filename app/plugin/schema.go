package plugin

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vibast-solutions/ms-go-integrations/app/entity"
)

var ErrInvalidValues = errors.New("invalid values")

var validate = validator.New()

// ValidateValues checks values against schema and returns a copy with
// defaults applied. Keys not declared in the schema are rejected.
func ValidateValues(schema map[string]entity.FieldSpec, values map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(schema))
	problems := make([]string, 0)

	for key := range values {
		if _, ok := schema[key]; !ok {
			problems = append(problems, fmt.Sprintf("%s: not declared", key))
		}
	}

	for key, spec := range schema {
		value, present := values[key]
		if !present || value == nil {
			if spec.Default != nil {
				out[key] = spec.Default
				continue
			}
			if spec.Required {
				problems = append(problems, fmt.Sprintf("%s: required", key))
			}
			continue
		}

		if !matchesType(spec.Type, value) {
			problems = append(problems, fmt.Sprintf("%s: expected %s", key, spec.Type))
			continue
		}
		if spec.Rules != "" {
			if err := validate.Var(value, spec.Rules); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %s", key, describeRuleFailure(err)))
				continue
			}
		}
		out[key] = value
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("%w: %s", ErrInvalidValues, strings.Join(problems, "; "))
	}
	return out, nil
}

func matchesType(kind string, value interface{}) bool {
	switch kind {
	case "", "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := asFloat(value)
		return ok
	case "integer":
		f, ok := asFloat(value)
		return ok && f == math.Trunc(f)
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	default:
		return false
	}
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func describeRuleFailure(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return "failed " + fe.Tag()
	}
	return err.Error()
}
