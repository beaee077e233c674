package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaborage/apidoc/schema"
)

// checkRefs fails with schema.ErrDanglingRef when any schema reference in doc
// has no target in components.schemas.
func checkRefs(doc *openapi3.T) error {
	components := doc.Components.Schemas
	check := func(where string, root *openapi3.SchemaRef) error {
		return schema.WalkRefs(root, func(ref *openapi3.SchemaRef) error {
			if _, err := schema.Target(ref.Ref, components); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
			return nil
		})
	}

	for name, c := range components {
		if err := check("components.schemas."+name, c); err != nil {
			return err
		}
	}

	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			where := method + " " + path
			for _, p := range op.Parameters {
				if p.Value == nil {
					continue
				}
				if err := check(where+" parameter "+p.Value.Name, p.Value.Schema); err != nil {
					return err
				}
			}
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				for _, media := range op.RequestBody.Value.Content {
					if err := check(where+" requestBody", media.Schema); err != nil {
						return err
					}
				}
			}
			if op.Responses == nil {
				continue
			}
			for status, resp := range op.Responses.Map() {
				if resp.Value == nil {
					continue
				}
				for _, media := range resp.Value.Content {
					if err := check(where+" response "+status, media.Schema); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
