package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaborage/apidoc/internal/reflection"
	"github.com/gaborage/apidoc/validation"
)

// Enumer is implemented by named types with a closed set of values.
//
//	func (Role) OpenAPIEnum() []any { return []any{"admin", "user"} }
type Enumer interface {
	OpenAPIEnum() []any
}

// Exampler is implemented by types that provide an example value.
type Exampler interface {
	OpenAPIExample() any
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	enumerType   = reflect.TypeOf((*Enumer)(nil)).Elem()
	examplerType = reflect.TypeOf((*Exampler)(nil)).Elem()

	errAlreadyInitialised = errors.New("reflector already initialised")
)

// StructReflector reflects Go types registered under symbolic names.
// Field names follow json tags; constraints come from validate, doc,
// default, example and pattern tags. Named structs reached from a
// registered type become definitions, keyed by their registered symbol or
// their Go type name.
//
// Types are registered before Init; afterwards the reflector is read-only.
type StructReflector struct {
	mu       sync.RWMutex
	types    map[string]reflect.Type
	symbolOf map[reflect.Type]string
	bareOf   map[string]string
	ready    atomic.Bool
}

var _ TypeReflector = (*StructReflector)(nil)

// NewStructReflector creates an empty reflector.
func NewStructReflector() *StructReflector {
	return &StructReflector{
		types:    make(map[string]reflect.Type),
		symbolOf: make(map[reflect.Type]string),
		bareOf:   make(map[string]string),
	}
}

// Register binds symbol to the type of value. Symbols are usually qualified
// ("API.UserRes"); bare names must stay unique across namespaces.
func (r *StructReflector) Register(symbol string, value any) error {
	if r.ready.Load() {
		return fmt.Errorf("register %s: %w", symbol, errAlreadyInitialised)
	}
	if symbol == "" || IsPrimitive(symbol) || symbol == TypeAny {
		return fmt.Errorf("register %q: reserved or empty symbol", symbol)
	}
	if value == nil {
		return fmt.Errorf("register %s: nil value", symbol)
	}

	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Errorf("register %s: %s is not a named type", symbol, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[symbol]; exists {
		return fmt.Errorf("register %s: symbol already registered", symbol)
	}
	if prev, exists := r.symbolOf[t]; exists {
		return fmt.Errorf("register %s: %s already registered as %s", symbol, t, prev)
	}
	bare := ComponentName(symbol)
	if prev, exists := r.bareOf[bare]; exists {
		return fmt.Errorf("register %s: component name %s already used by %s", symbol, bare, prev)
	}

	r.types[symbol] = t
	r.symbolOf[t] = symbol
	r.bareOf[bare] = symbol
	return nil
}

// MustRegister is Register that panics, for static registration tables.
func (r *StructReflector) MustRegister(symbol string, value any) *StructReflector {
	if err := r.Register(symbol, value); err != nil {
		panic(err)
	}
	return r
}

// Init freezes the registry.
func (r *StructReflector) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.ready.Store(true)
	return nil
}

// Ready reports whether Init has completed.
func (r *StructReflector) Ready() bool {
	return r.ready.Load()
}

// Symbols returns the registered symbols in sorted order.
func (r *StructReflector) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.types))
	for s := range r.types {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// ReflectType builds a fresh Reflection for symbol.
func (r *StructReflector) ReflectType(symbol string) (*Reflection, error) {
	if !r.ready.Load() {
		return nil, ErrNotReady
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, symbol)
	}

	b := &structBuilder{r: r, defs: openapi3.Schemas{}, owner: map[string]reflect.Type{}}
	root, err := b.inline(t)
	if err != nil {
		return nil, fmt.Errorf("reflect %s: %w", symbol, err)
	}
	return &Reflection{Schema: &openapi3.SchemaRef{Value: root}, Definitions: b.defs}, nil
}

type structBuilder struct {
	r     *StructReflector
	defs  openapi3.Schemas
	owner map[string]reflect.Type // bare component name -> type
}

func (b *structBuilder) isDefinition(t reflect.Type) bool {
	if t.Name() == "" || t.PkgPath() == "" || t == timeType {
		return false
	}
	if _, registered := b.r.symbolOf[t]; registered {
		return true
	}
	return t.Kind() == reflect.Struct || t.Implements(enumerType)
}

func (b *structBuilder) ref(t reflect.Type) (*openapi3.SchemaRef, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if !b.isDefinition(t) {
		s, err := b.inline(t)
		if err != nil {
			return nil, err
		}
		return &openapi3.SchemaRef{Value: s}, nil
	}

	name, ok := b.r.symbolOf[t]
	if !ok {
		name = reflection.GetTypeNameShort(t)
	}
	bare := ComponentName(name)
	if owner, seen := b.owner[bare]; seen {
		if owner != t {
			return nil, fmt.Errorf("component name %s used by both %s and %s", bare, owner, t)
		}
		return &openapi3.SchemaRef{Ref: DefinitionsPrefix + name}, nil
	}

	b.owner[bare] = t
	def := &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	b.defs[name] = def
	s, err := b.inline(t)
	if err != nil {
		return nil, err
	}
	def.Value = s
	return &openapi3.SchemaRef{Ref: DefinitionsPrefix + name}, nil
}

func (b *structBuilder) inline(t reflect.Type) (*openapi3.Schema, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return openapi3.NewDateTimeSchema(), nil
	}

	s, err := b.kindSchema(t)
	if err != nil {
		return nil, err
	}

	if t.Implements(enumerType) {
		if e, ok := reflect.Zero(t).Interface().(Enumer); ok {
			s.Enum = e.OpenAPIEnum()
		}
	}
	if t.Implements(examplerType) {
		if ex, ok := reflect.Zero(t).Interface().(Exampler); ok {
			example, err := jsonValue(ex.OpenAPIExample())
			if err != nil {
				return nil, fmt.Errorf("example of %s: %w", t, err)
			}
			s.Example = example
		}
	}
	return s, nil
}

func (b *structBuilder) kindSchema(t reflect.Type) (*openapi3.Schema, error) {
	switch t.Kind() {
	case reflect.Bool:
		return openapi3.NewBoolSchema(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema(), nil
	case reflect.Float32, reflect.Float64:
		return &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeNumber}}, nil
	case reflect.String:
		return openapi3.NewStringSchema(), nil
	case reflect.Slice, reflect.Array:
		if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
			return openapi3.NewBytesSchema(), nil
		}
		items, err := b.ref(t.Elem())
		if err != nil {
			return nil, err
		}
		return &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeArray}, Items: items}, nil
	case reflect.Map:
		s := openapi3.NewObjectSchema()
		if t.Key().Kind() != reflect.String {
			return s, nil
		}
		values, err := b.ref(t.Elem())
		if err != nil {
			return nil, err
		}
		s.AdditionalProperties = openapi3.AdditionalProperties{Schema: values}
		return s, nil
	case reflect.Struct:
		s := openapi3.NewObjectSchema()
		if err := b.collectFields(t, s, false); err != nil {
			return nil, err
		}
		return s, nil
	case reflect.Interface:
		return &openapi3.Schema{}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s for %s", t.Kind(), t)
	}
}

// collectFields adds the JSON properties of t to s. Embedded structs without
// a json name are flattened; embedding through a pointer makes their fields
// optional.
func (b *structBuilder) collectFields(t reflect.Type, s *openapi3.Schema, allOptional bool) error {
	for i := range t.NumField() {
		field := t.Field(i)
		info := validation.ParseField(field)
		if info.Skipped() {
			continue
		}

		if field.Anonymous && info.JSONName == field.Name {
			ft := field.Type
			isPtr := ft.Kind() == reflect.Pointer
			if isPtr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := b.collectFields(ft, s, allOptional || isPtr); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}

		prop, err := b.ref(field.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
		if prop.Value != nil {
			if err := applyTags(prop.Value, &info); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		}

		s.Properties[info.JSONName] = prop
		if info.Required && !allOptional {
			s.Required = append(s.Required, info.JSONName)
		}
	}
	return nil
}

func applyTags(s *openapi3.Schema, info *validation.TagInfo) error {
	if info.Description != "" {
		s.Description = info.Description
	}

	is := func(typ string) bool { return s.Type != nil && s.Type.Is(typ) }
	numeric := is(openapi3.TypeNumber) || is(openapi3.TypeInteger)

	if l, ok := info.Len(); ok {
		switch {
		case is(openapi3.TypeString):
			s.MinLength, s.MaxLength = uint64(l), validation.Ptr(uint64(l))
		case is(openapi3.TypeArray):
			s.MinItems, s.MaxItems = uint64(l), validation.Ptr(uint64(l))
		}
	}
	if v, ok := info.Min(); ok {
		switch {
		case is(openapi3.TypeString):
			s.MinLength = uint64(v)
		case is(openapi3.TypeArray):
			s.MinItems = uint64(v)
		case numeric:
			s.Min = validation.Ptr(v)
		}
	}
	if v, ok := info.Max(); ok {
		switch {
		case is(openapi3.TypeString):
			s.MaxLength = validation.Ptr(uint64(v))
		case is(openapi3.TypeArray):
			s.MaxItems = validation.Ptr(uint64(v))
		case numeric:
			s.Max = validation.Ptr(v)
		}
	}

	if is(openapi3.TypeString) {
		if pattern, ok := info.GetPattern(); ok {
			s.Pattern = pattern
		}
		if format := info.Format(); format != "" {
			s.Format = format
		}
	}

	if values, ok := info.GetEnum(); ok && len(s.Enum) == 0 {
		for _, raw := range values {
			v, err := tagValue(s, raw)
			if err != nil {
				return fmt.Errorf("oneof: %w", err)
			}
			s.Enum = append(s.Enum, v)
		}
	}
	if info.Default != "" {
		v, err := tagValue(s, info.Default)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		s.Default = v
	}
	if info.Example != "" {
		v, err := tagValue(s, info.Example)
		if err != nil {
			return fmt.Errorf("example: %w", err)
		}
		s.Example = v
	}
	return nil
}

// jsonValue converts v to its decoded-JSON form so it can be checked
// against the schema like any request value.
func jsonValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

// tagValue converts a tag literal to the JSON type of s. Integers are kept
// as float64 to compare equal to decoded JSON numbers.
func tagValue(s *openapi3.Schema, raw string) (any, error) {
	switch {
	case s.Type == nil:
		return raw, nil
	case s.Type.Is(openapi3.TypeInteger):
		n, err := strconv.ParseInt(raw, 10, 64)
		return float64(n), err
	case s.Type.Is(openapi3.TypeNumber):
		return strconv.ParseFloat(raw, 64)
	case s.Type.Is(openapi3.TypeBoolean):
		return strconv.ParseBool(raw)
	default:
		return raw, nil
	}
}
