package schema

import (
	"errors"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Resolver turns type names into TypeSchemas. It holds no per-call state;
// every Resolve works on a fresh reflection.
type Resolver struct {
	reflector TypeReflector

	mu      sync.Mutex
	symbols map[string]struct{}
}

// NewResolver creates a resolver over reflector.
func NewResolver(reflector TypeReflector) *Resolver {
	return &Resolver{reflector: reflector}
}

// Reflector returns the underlying reflector.
func (r *Resolver) Reflector() TypeReflector {
	return r.reflector
}

// Known reports whether name is a primitive, "any" or a reflector symbol.
func (r *Resolver) Known(name string) (bool, error) {
	if IsPrimitive(name) || name == TypeAny {
		return true, nil
	}
	if r.reflector == nil || !r.reflector.Ready() {
		return false, ErrNotReady
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.symbols == nil {
		syms := r.reflector.Symbols()
		r.symbols = make(map[string]struct{}, len(syms))
		for _, s := range syms {
			r.symbols[s] = struct{}{}
		}
	}
	_, ok := r.symbols[name]
	return ok, nil
}

// Resolve returns the schema for name and every component it needs.
// Primitives resolve to {type: name}, "any" to the empty schema. Named types
// are registered under their bare name and returned as a linked $ref,
// except objects that only exist to carry definitions, which are returned
// inline once their definitions are hoisted.
func (r *Resolver) Resolve(name string) (*TypeSchema, error) {
	switch {
	case IsPrimitive(name):
		return &TypeSchema{
			Schema:     &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{name}}},
			Components: openapi3.Schemas{},
		}, nil
	case name == TypeAny:
		return &TypeSchema{Schema: &openapi3.SchemaRef{Value: &openapi3.Schema{}}, Components: openapi3.Schemas{}}, nil
	}

	if r.reflector == nil || !r.reflector.Ready() {
		return nil, ErrNotReady
	}

	refl, err := r.reflector.ReflectType(name)
	if err != nil {
		if errors.Is(err, ErrUnknownType) || errors.Is(err, ErrNotReady) {
			return nil, err
		}
		return nil, fmt.Errorf("reflect %s: %w", name, err)
	}
	if refl == nil || refl.Schema == nil {
		return nil, fmt.Errorf("reflect %s: %w", name, ErrUnknownType)
	}

	components := make(openapi3.Schemas, len(refl.Definitions)+1)
	for qualified, def := range refl.Definitions {
		components[ComponentName(qualified)] = def
	}

	rewrite := func(ref *openapi3.SchemaRef) error {
		ref.Ref = rewriteRef(ref.Ref)
		ref.Value = nil
		return nil
	}
	root := refl.Schema
	if root.Ref != "" {
		root.Ref = rewriteRef(root.Ref)
	} else if err := WalkRefs(root, rewrite); err != nil {
		return nil, err
	}
	for _, def := range components {
		if def.Ref != "" {
			def.Ref = rewriteRef(def.Ref)
			continue
		}
		if err := WalkRefs(def, rewrite); err != nil {
			return nil, err
		}
	}

	result := root
	if len(refl.Definitions) == 0 || (root.Ref == "" && isObject(root.Value)) {
		components[ComponentName(name)] = root
		result = &openapi3.SchemaRef{Ref: ComponentRef(name)}
	}

	if err := Link(result, components); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	for key, def := range components {
		if err := Link(def, components); err != nil {
			return nil, fmt.Errorf("resolve %s: component %s: %w", name, key, err)
		}
	}

	return &TypeSchema{Schema: result, Components: components}, nil
}

func isObject(s *openapi3.Schema) bool {
	if s == nil {
		return false
	}
	if s.Type != nil {
		return s.Type.Is(openapi3.TypeObject)
	}
	return len(s.Properties) > 0
}
