// Package schema turns symbolic type names into OpenAPI schemas.
//
// A TypeReflector produces a raw Reflection for a qualified symbol such as
// "API.UserRes", with nested definitions referenced as
// "#/definitions/<symbol>". The Resolver hoists those definitions into
// component schemas keyed by bare name ("UserRes"), rewrites every reference
// to "#/components/schemas/<bare>" and links each reference to its target so
// the result can be validated directly.
package schema

import (
	"context"
	"errors"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Primitive type names understood without a reflector.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeAny     = "any"
)

const (
	// DefinitionsPrefix starts every reference produced by a TypeReflector.
	DefinitionsPrefix = "#/definitions/"
	// ComponentsPrefix starts every reference in resolved schemas.
	ComponentsPrefix = "#/components/schemas/"
)

var (
	// ErrNotReady is returned while the reflector has not finished Init.
	ErrNotReady = errors.New("type reflector not initialised")
	// ErrUnknownType is returned for names the reflector does not know.
	ErrUnknownType = errors.New("unknown type")
	// ErrDanglingRef is returned for references without a component.
	ErrDanglingRef = errors.New("dangling schema reference")
)

// Reflection is the raw output of a TypeReflector. Definitions are keyed by
// qualified symbol. Schema may itself be a bare reference for aliases.
type Reflection struct {
	Schema      *openapi3.SchemaRef
	Definitions openapi3.Schemas
}

// TypeReflector converts symbolic type names into schemas. ReflectType must
// return a fresh value on each call; callers are free to mutate it.
type TypeReflector interface {
	Init(ctx context.Context) error
	Ready() bool
	Symbols() []string
	ReflectType(name string) (*Reflection, error)
}

// TypeSchema is a resolved type: the schema to embed plus every component it
// references, keyed by bare name.
type TypeSchema struct {
	Schema     *openapi3.SchemaRef
	Components openapi3.Schemas
}

// IsPrimitive reports whether name is string, number or boolean.
func IsPrimitive(name string) bool {
	return name == TypeString || name == TypeNumber || name == TypeBoolean
}

// ComponentName strips the first qualifier from a symbol:
// "API.UserRes" becomes "UserRes"; unqualified names are returned unchanged.
func ComponentName(symbol string) string {
	if _, rest, found := strings.Cut(symbol, "."); found && rest != "" {
		return rest
	}
	return symbol
}

// ComponentRef returns the components reference for a symbol.
func ComponentRef(symbol string) string {
	return ComponentsPrefix + ComponentName(symbol)
}
