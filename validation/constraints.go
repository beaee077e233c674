package validation

import (
	"fmt"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

// Constraints are the optional checks attached to a declared parameter.
// All fields are optional; nil bounds are not enforced.
type Constraints struct {
	// Name overrides the declared parameter name on the wire.
	Name        string
	Description string
	Required    bool
	Default     any
	Enum        []string
	Minimum     *float64
	Maximum     *float64
	MinItems    *uint64
	MaxItems    *uint64
	MinLength   *uint64
	MaxLength   *uint64
	Pattern     string
}

// Ptr returns a pointer to v, for filling the bound fields of Constraints.
func Ptr[T any](v T) *T {
	return &v
}

// First returns the first element of cs or the zero Constraints.
func First(cs []Constraints) Constraints {
	if len(cs) == 0 {
		return Constraints{}
	}
	return cs[0]
}

// Schema renders the constraints as a schema of the primitive type typeName
// ("string", "number" or "boolean"). Enum values are converted to the type.
// Description stays out of the schema; documentation puts it on the
// parameter.
func (c Constraints) Schema(typeName string) (*openapi3.Schema, error) {
	switch typeName {
	case openapi3.TypeString, openapi3.TypeNumber, openapi3.TypeBoolean:
	default:
		return nil, fmt.Errorf("constraints apply to string, number or boolean, not %q", typeName)
	}

	s := &openapi3.Schema{Type: &openapi3.Types{typeName}}
	s.Min = c.Minimum
	s.Max = c.Maximum
	s.MaxItems = c.MaxItems
	s.MaxLength = c.MaxLength
	if c.MinItems != nil {
		s.MinItems = *c.MinItems
	}
	if c.MinLength != nil {
		s.MinLength = *c.MinLength
	}
	s.Pattern = c.Pattern
	s.Default = c.Default

	for _, raw := range c.Enum {
		value, err := enumValue(typeName, raw)
		if err != nil {
			return nil, err
		}
		s.Enum = append(s.Enum, value)
	}

	return s, nil
}

func enumValue(typeName, raw string) (any, error) {
	switch typeName {
	case openapi3.TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("enum value %q is not a number: %w", raw, err)
		}
		return f, nil
	case openapi3.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("enum value %q is not a boolean: %w", raw, err)
		}
		return b, nil
	default:
		return raw, nil
	}
}
