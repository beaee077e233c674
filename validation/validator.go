package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// ErrMalformedSchema marks a schema that cannot be compiled into a validator.
var ErrMalformedSchema = errors.New("malformed schema")

// Validator checks JSON-like values (maps, slices, float64, string, bool)
// against a compiled schema. Safe for concurrent use.
type Validator struct {
	schema *openapi3.Schema
}

// Compile checks that s is well formed and returns a validator for it.
// Every $ref inside s must already be linked to its target.
func Compile(ctx context.Context, s *openapi3.Schema) (*Validator, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil schema", ErrMalformedSchema)
	}
	if err := s.Validate(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSchema, err)
	}
	return &Validator{schema: s}, nil
}

// Schema returns the compiled schema. Callers must not modify it.
func (v *Validator) Schema() *openapi3.Schema {
	return v.schema
}

// Validate returns nil or a *ValidationError listing every violation.
func (v *Validator) Validate(value any) error {
	err := v.schema.VisitJSON(value, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	return &ValidationError{Violations: collect(err, nil)}
}

// Violation is one failed check. Field is the dotted path of the offending
// value relative to the validated parameter, empty for the parameter itself.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ValidationError is returned for request values that fail their schema.
// It renders as "<param>: v1;v2", or "v1;v2" when Param is empty.
type ValidationError struct {
	Param      string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	msg := strings.Join(parts, ";")
	if e.Param == "" {
		return msg
	}
	return e.Param + ": " + msg
}

// Scoped attaches the parameter name and strips wrapper from the front of
// every field path. Wrapper is the property the value was nested under for
// validation.
func (e *ValidationError) Scoped(param, wrapper string) *ValidationError {
	out := &ValidationError{Param: param, Violations: make([]Violation, len(e.Violations))}
	for i, v := range e.Violations {
		if wrapper != "" {
			if v.Field == wrapper {
				v.Field = ""
			} else {
				v.Field = strings.TrimPrefix(v.Field, wrapper+".")
			}
		}
		out.Violations[i] = v
	}
	return out
}

// Required builds the violation reported for a missing value.
func Required(param string) *ValidationError {
	return &ValidationError{Param: param, Violations: []Violation{{Message: "is required"}}}
}

func collect(err error, out []Violation) []Violation {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, inner := range multi {
			out = collect(inner, out)
		}
		return out
	}

	var v Violation
	var schemaErr *openapi3.SchemaError
	switch {
	case errors.Is(err, openapi3.ErrSchemaInputNaN), errors.Is(err, openapi3.ErrSchemaInputInf):
		v.Message = "must be a number"
		if errors.As(err, &schemaErr) {
			v.Field = strings.Join(schemaErr.JSONPointer(), ".")
		}
	case errors.As(err, &schemaErr):
		v = Violation{Field: strings.Join(schemaErr.JSONPointer(), "."), Message: schemaErr.Reason}
	default:
		v.Message = err.Error()
	}

	for _, seen := range out {
		if seen == v {
			return out
		}
	}
	return append(out, v)
}
