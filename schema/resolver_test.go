package schema

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/apidoc/validation"
)

// staticReflector serves hand-built reflections.
type staticReflector struct {
	ready bool
	types map[string]func() *Reflection
}

func (s *staticReflector) Init(context.Context) error { s.ready = true; return nil }
func (s *staticReflector) Ready() bool                { return s.ready }

func (s *staticReflector) Symbols() []string {
	out := make([]string, 0, len(s.types))
	for k := range s.types {
		out = append(out, k)
	}
	return out
}

func (s *staticReflector) ReflectType(name string) (*Reflection, error) {
	fn, ok := s.types[name]
	if !ok {
		return nil, ErrUnknownType
	}
	return fn(), nil
}

func typingsResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(loadTypings(t))
}

func TestResolvePrimitives(t *testing.T) {
	r := NewResolver(nil)

	for _, name := range []string{TypeString, TypeNumber, TypeBoolean} {
		ts, err := r.Resolve(name)
		require.NoError(t, err)
		assert.True(t, ts.Schema.Value.Type.Is(name))
		assert.Empty(t, ts.Schema.Ref)
		assert.Empty(t, ts.Components)
	}

	ts, err := r.Resolve(TypeAny)
	require.NoError(t, err)
	assert.Equal(t, &openapi3.Schema{}, ts.Schema.Value)
	assert.Empty(t, ts.Components)
}

func TestResolveNotReadyAndUnknown(t *testing.T) {
	_, err := NewResolver(NewDirReflector(typingsDir)).Resolve("API.UserRes")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = NewResolver(nil).Resolve("API.UserRes")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = typingsResolver(t).Resolve("API.Nope")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestResolvePlainObjectRegistersComponent(t *testing.T) {
	ts, err := typingsResolver(t).Resolve("API.UserRes")
	require.NoError(t, err)

	assert.Equal(t, "#/components/schemas/UserRes", ts.Schema.Ref)
	require.Contains(t, ts.Components, "UserRes")
	user := ts.Components["UserRes"].Value
	assert.Len(t, user.Properties, 4)
	assert.Equal(t, []string{"id", "username", "phone"}, user.Required)
	assert.Same(t, user, ts.Schema.Value)
}

func TestResolveHoistsDefinitions(t *testing.T) {
	ts, err := typingsResolver(t).Resolve("API.Profile")
	require.NoError(t, err)

	assert.Equal(t, "#/components/schemas/Profile", ts.Schema.Ref)
	assert.ElementsMatch(t, []string{"Profile", "UserRes", "Address"}, keys(ts.Components))

	address := ts.Components["Profile"].Value.Properties["address"]
	assert.Equal(t, "#/components/schemas/Address", address.Ref)
	assert.Same(t, ts.Components["Address"].Value, address.Value)
}

func TestResolveEnumAlias(t *testing.T) {
	ts, err := typingsResolver(t).Resolve("API.Role")
	require.NoError(t, err)

	assert.Equal(t, "#/components/schemas/Role", ts.Schema.Ref)
	assert.Equal(t, []any{"admin", "user"}, ts.Components["Role"].Value.Enum)
}

func TestResolveNonObjectWithDefinitionsStaysInline(t *testing.T) {
	ts, err := typingsResolver(t).Resolve("API.UserList")
	require.NoError(t, err)

	assert.Empty(t, ts.Schema.Ref)
	assert.True(t, ts.Schema.Value.Type.Is("array"))
	assert.Equal(t, "#/components/schemas/UserRes", ts.Schema.Value.Items.Ref)
	assert.NotContains(t, ts.Components, "UserList")
	assert.Contains(t, ts.Components, "UserRes")
}

func TestResolveCrossNamespace(t *testing.T) {
	ts, err := typingsResolver(t).Resolve("Common.Paged")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Paged", "UserRes"}, keys(ts.Components))
}

func TestResolveIsIdempotent(t *testing.T) {
	r := typingsResolver(t)

	first, err := r.Resolve("API.Profile")
	require.NoError(t, err)
	second, err := r.Resolve("API.Profile")
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestResolveNeverLeavesDanglingRefs(t *testing.T) {
	r := typingsResolver(t)

	for _, name := range r.Reflector().Symbols() {
		ts, err := r.Resolve(name)
		require.NoError(t, err, name)

		check := func(ref *openapi3.SchemaRef) error {
			_, err := Target(ref.Ref, ts.Components)
			return err
		}
		require.NoError(t, WalkRefs(ts.Schema, check), name)
		for _, c := range ts.Components {
			require.NoError(t, WalkRefs(c, check), name)
		}
	}
}

func TestResolveDanglingReference(t *testing.T) {
	r := NewResolver(&staticReflector{ready: true, types: map[string]func() *Reflection{
		"API.Broken": func() *Reflection {
			return &Reflection{Schema: &openapi3.SchemaRef{Value: openapi3.NewObjectSchema().
				WithPropertyRef("team", &openapi3.SchemaRef{Ref: "#/definitions/API.Team"})}}
		},
		"API.Loop": func() *Reflection {
			return &Reflection{Schema: &openapi3.SchemaRef{Ref: "#/definitions/API.Loop"}}
		},
	}})

	_, err := r.Resolve("API.Broken")
	assert.ErrorIs(t, err, ErrDanglingRef)

	_, err = r.Resolve("API.Loop")
	assert.ErrorIs(t, err, ErrDanglingRef)
}

func TestResolvedSchemaValidates(t *testing.T) {
	ts, err := typingsResolver(t).Resolve("API.Profile")
	require.NoError(t, err)

	v, err := validation.Compile(context.Background(), ts.Schema.Value)
	require.NoError(t, err)

	valid := map[string]any{
		"user":    map[string]any{"id": 1.0, "username": "ann", "phone": "555"},
		"address": map[string]any{"city": "Oslo", "zip": "12345"},
	}
	assert.NoError(t, v.Validate(valid))

	err = v.Validate(map[string]any{
		"user":    map[string]any{"id": 1.0, "username": "ann", "phone": "555"},
		"address": map[string]any{"zip": "12"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `property "city" is missing`)
	assert.Contains(t, err.Error(), "regular expression")
}

func TestKnown(t *testing.T) {
	r := typingsResolver(t)

	for name, want := range map[string]bool{"string": true, "any": true, "API.UserRes": true, "UserRes": false, "API.Nope": false} {
		got, err := r.Known(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := NewResolver(NewDirReflector(typingsDir)).Known("API.UserRes")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestComponentName(t *testing.T) {
	assert.Equal(t, "UserRes", ComponentName("API.UserRes"))
	assert.Equal(t, "User.V2", ComponentName("API.User.V2"))
	assert.Equal(t, "UserRes", ComponentName("UserRes"))
	assert.Equal(t, "#/components/schemas/UserRes", ComponentRef("API.UserRes"))
}

func keys(m openapi3.Schemas) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
