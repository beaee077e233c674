package server

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaborage/apidoc/schema"
	"github.com/gaborage/apidoc/validation"
)

// SourceKind names the part of the request a parameter is read from.
type SourceKind int

const (
	// SourcePath reads one ":name" path segment. Always required.
	SourcePath SourceKind = iota + 1
	// SourceHeader reads one header, matched case-insensitively.
	SourceHeader
	// SourceQuery reads the first value of one query parameter.
	SourceQuery
	// SourceQueryAll reads the whole query string as an object.
	SourceQueryAll
	// SourceBody reads one property of the JSON body object.
	SourceBody
	// SourceBodyAll reads the whole JSON body.
	SourceBodyAll
)

func (k SourceKind) String() string {
	switch k {
	case SourcePath:
		return "path"
	case SourceHeader:
		return "header"
	case SourceQuery:
		return "query"
	case SourceQueryAll:
		return "query_all"
	case SourceBody:
		return "body"
	case SourceBodyAll:
		return "body_all"
	default:
		return fmt.Sprintf("source(%d)", int(k))
	}
}

// Single reports whether the source carries one scalar string value.
func (k SourceKind) Single() bool {
	return k == SourcePath || k == SourceHeader || k == SourceQuery
}

// Param is one declared handler argument. A Param without a rule receives
// the raw echo.Context.
type Param struct {
	name string
	rule *ParameterRule
}

// Name returns the declared argument name.
func (p Param) Name() string { return p.name }

// Rule returns the extraction rule, nil for Raw parameters.
func (p Param) Rule() *ParameterRule { return p.rule }

// PathParam declares a path segment argument of type string or number.
func PathParam(name, typeName string, constraints ...validation.Constraints) Param {
	return newParam(name, SourcePath, typeName, constraints)
}

// Header declares a header argument of type string or number.
func Header(name, typeName string, constraints ...validation.Constraints) Param {
	return newParam(name, SourceHeader, typeName, constraints)
}

// Query declares a single query parameter of type string or number.
func Query(name, typeName string, constraints ...validation.Constraints) Param {
	return newParam(name, SourceQuery, typeName, constraints)
}

// AllQuery declares the whole query string, validated against typeName.
func AllQuery(name, typeName string, constraints ...validation.Constraints) Param {
	return newParam(name, SourceQueryAll, typeName, constraints)
}

// Body declares one property of the JSON body object.
func Body(name, typeName string, constraints ...validation.Constraints) Param {
	return newParam(name, SourceBody, typeName, constraints)
}

// AllBody declares the whole JSON body, validated against typeName.
func AllBody(name, typeName string, constraints ...validation.Constraints) Param {
	return newParam(name, SourceBodyAll, typeName, constraints)
}

// Raw declares an argument that receives the echo.Context unchanged.
func Raw(name string) Param {
	return Param{name: name}
}

func newParam(name string, source SourceKind, typeName string, cs []validation.Constraints) Param {
	return Param{
		name: name,
		rule: &ParameterRule{Source: source, Type: typeName, Constraints: validation.First(cs)},
	}
}

// ParameterRule is the extraction and validation rule for one argument
// position. Rules are immutable once their action is registered and must
// not be copied.
type ParameterRule struct {
	Position    int
	Source      SourceKind
	Type        string
	Constraints validation.Constraints

	resolver *schema.Resolver
	lazy     validation.Lazy
}

// clone copies the rule without its compiled validator.
func (r *ParameterRule) clone() *ParameterRule {
	return &ParameterRule{
		Position:    r.Position,
		Source:      r.Source,
		Type:        r.Type,
		Constraints: r.Constraints,
		resolver:    r.resolver,
	}
}

// WireName is the name the value carries in the request: the constraint
// name override, or the declared name.
func (r *ParameterRule) WireName(declared string) string {
	if r.Constraints.Name != "" {
		return r.Constraints.Name
	}
	return declared
}

// Validated reports whether extracted values are checked against a schema.
func (r *ParameterRule) Validated() bool {
	return r.Type != schema.TypeAny
}

// Compiled reports whether the validator has been built.
func (r *ParameterRule) Compiled() bool {
	return r.lazy.Compiled()
}

// Validator returns the compiled validator, building it on first use.
// Name is the wire name, needed for the body property wrapper.
func (r *ParameterRule) Validator(ctx context.Context, name string) (*validation.Validator, error) {
	return r.lazy.Get(ctx, func() (*openapi3.Schema, error) {
		return r.validationSchema(name)
	})
}

// ValueSchema returns the schema of one extracted value: the constraint
// schema for primitives, the resolved type otherwise. Components receives
// every schema the value references.
func (r *ParameterRule) ValueSchema() (*openapi3.SchemaRef, openapi3.Schemas, error) {
	if schema.IsPrimitive(r.Type) {
		s, err := r.Constraints.Schema(r.Type)
		if err != nil {
			return nil, nil, err
		}
		return openapi3.NewSchemaRef("", s), openapi3.Schemas{}, nil
	}
	if r.resolver == nil {
		return nil, nil, fmt.Errorf("%w: no resolver for %s", schema.ErrNotReady, r.Type)
	}
	ts, err := r.resolver.Resolve(r.Type)
	if err != nil {
		return nil, nil, err
	}
	return ts.Schema, ts.Components, nil
}

func (r *ParameterRule) validationSchema(name string) (*openapi3.Schema, error) {
	value, _, err := r.ValueSchema()
	if err != nil {
		return nil, err
	}

	switch r.Source {
	case SourceQueryAll, SourceBodyAll:
		return value.Value, nil
	case SourceBody:
		wrapper := openapi3.NewObjectSchema().WithPropertyRef(name, value)
		if r.Constraints.Required {
			wrapper.Required = []string{name}
		}
		return wrapper, nil
	default:
		return openapi3.NewObjectSchema().WithPropertyRef(singleKey, value), nil
	}
}

// singleKey wraps a scalar value so violations carry a field path that
// Scoped can strip.
const singleKey = "_"
