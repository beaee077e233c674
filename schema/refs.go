package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// WalkRefs calls fn for every SchemaRef reachable from root that carries a
// $ref. Inline schemas are visited once each. Reference targets are not
// followed, so walking a linked schema never leaves its own tree.
func WalkRefs(root *openapi3.SchemaRef, fn func(*openapi3.SchemaRef) error) error {
	return walk(root, fn, make(map[*openapi3.Schema]struct{}))
}

func walk(ref *openapi3.SchemaRef, fn func(*openapi3.SchemaRef) error, seen map[*openapi3.Schema]struct{}) error {
	if ref == nil {
		return nil
	}
	if ref.Ref != "" {
		return fn(ref)
	}
	s := ref.Value
	if s == nil {
		return nil
	}
	if _, ok := seen[s]; ok {
		return nil
	}
	seen[s] = struct{}{}

	children := make([]*openapi3.SchemaRef, 0, len(s.Properties)+4)
	for _, name := range sortedKeys(s.Properties) {
		children = append(children, s.Properties[name])
	}
	children = append(children, s.Items, s.Not, s.AdditionalProperties.Schema)
	children = append(children, s.AllOf...)
	children = append(children, s.AnyOf...)
	children = append(children, s.OneOf...)

	for _, child := range children {
		if err := walk(child, fn, seen); err != nil {
			return err
		}
	}
	return nil
}

// rewriteRef maps "#/definitions/<ns>.<X>" and "#/components/schemas/<ns>.<X>"
// onto "#/components/schemas/<X>".
func rewriteRef(ref string) string {
	if name, ok := strings.CutPrefix(ref, DefinitionsPrefix); ok {
		return ComponentRef(name)
	}
	if name, ok := strings.CutPrefix(ref, ComponentsPrefix); ok {
		return ComponentRef(name)
	}
	return ref
}

// Target returns the schema a components reference points to, following
// alias chains. Missing or cyclic targets yield ErrDanglingRef.
func Target(ref string, components openapi3.Schemas) (*openapi3.Schema, error) {
	for hops := 0; hops <= len(components); hops++ {
		name, ok := strings.CutPrefix(ref, ComponentsPrefix)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a component reference", ErrDanglingRef, ref)
		}
		c := components[name]
		if c == nil {
			return nil, fmt.Errorf("%w: %s", ErrDanglingRef, ref)
		}
		if c.Ref == "" {
			if c.Value == nil {
				return nil, fmt.Errorf("%w: %s has no schema", ErrDanglingRef, ref)
			}
			return c.Value, nil
		}
		ref = c.Ref
	}
	return nil, fmt.Errorf("%w: %s is part of a reference cycle", ErrDanglingRef, ref)
}

// Link sets Value on every reference reachable from root to its component.
func Link(root *openapi3.SchemaRef, components openapi3.Schemas) error {
	return WalkRefs(root, func(ref *openapi3.SchemaRef) error {
		target, err := Target(ref.Ref, components)
		if err != nil {
			return err
		}
		ref.Value = target
		return nil
	})
}

func sortedKeys(m openapi3.Schemas) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
