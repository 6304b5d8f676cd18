package schema

import (
	"github.com/concierge-sh/concierge/pkg/domain"
)

// Field is one declared argument: its type and whether it must be supplied.
type Field struct {
	Type     Type
	Required bool
}

// Schema maps argument names to their declarations.
type Schema map[string]Field

// ForArgs compiles argument declarations into a Schema. An empty or untyped
// declaration accepts any value.
func ForArgs(args []domain.ArgSpec) (Schema, error) {
	result := make(Schema, len(args))
	for _, arg := range args {
		field := Field{Required: arg.Required}
		if arg.Type != "" {
			t, err := ParseType(arg.Type)
			if err != nil {
				return nil, &ValidationError{Key: arg.Name, Reason: err.Error()}
			}
			field.Type = t
		}
		result[arg.Name] = field
	}
	return result, nil
}

// Validate checks supplied arguments against the schema: required arguments
// must be present, present arguments must match their declared type, and
// undeclared arguments are rejected. Returns an error aggregating every
// failure found. An empty schema accepts anything.
func (s Schema) Validate(data map[string]any) error {
	if len(s) == 0 {
		return nil
	}

	var errs []error

	for name, field := range s {
		value, exists := data[name]
		if !exists {
			if field.Required {
				errs = append(errs, &ValidationError{
					Key:    name,
					Reason: "required",
				})
			}
			continue
		}
		if field.Type == nil {
			continue
		}
		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    name,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	for name := range data {
		if _, declared := s[name]; !declared {
			errs = append(errs, &ValidationError{
				Key:    name,
				Reason: "not a declared argument",
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
