package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"testing/fstest"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/schema"
	"github.com/gaborage/apidoc/server"
	"github.com/gaborage/apidoc/validation"
)

const typings = `
namespace: API
definitions:
  UserRes:
    type: object
    properties:
      id: {type: number}
      username: {type: string}
      phone: {type: string}
      email: {type: string}
    required: [id, username, phone]
  Profile:
    type: object
    properties:
      user: {$ref: '#/definitions/UserRes'}
      role: {$ref: '#/definitions/Role'}
    required: [user]
  Search:
    type: object
    properties:
      q: {type: string, minLength: 1, description: Search text}
      limit: {type: integer, minimum: 1, maximum: 100}
      active: {type: boolean}
      tags: {type: array, items: {type: string}}
    required: [q]
  Login:
    type: object
    properties:
      user: {type: string, minLength: 3}
      role: {$ref: '#/definitions/Role'}
    required: [user]
  Role:
    type: string
    enum: [admin, user]
`

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "users", Version: "v1", Env: config.EnvDevelopment},
		OpenAPI: config.OpenAPIConfig{
			Enable:           true,
			RouterPrefix:     "/swagger-ui",
			SwaggerUIVersion: "3.35.1",
			Version:          "1.0.0",
		},
	}
}

func newRegistry(t *testing.T, cfg *config.Config) *server.Registry {
	t.Helper()
	r := schema.NewFSReflector(fstest.MapFS{"api.yaml": {Data: []byte(typings)}})
	require.NoError(t, r.Init(context.Background()))
	return server.NewRegistry(cfg, r, logger.NewNop())
}

func noop(server.HandlerContext, server.Args) (any, server.IAPIError) { return nil, nil }

func operation(t *testing.T, doc *openapi3.T, path, method string) *openapi3.Operation {
	t.Helper()
	item := doc.Paths.Value(path)
	require.NotNil(t, item, "path %s", path)
	op := item.GetOperation(method)
	require.NotNil(t, op, "%s %s", method, path)
	return op
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestBuildUserScenario(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("user", "/user", server.WithControllerDescription("User operations")).
		GET("/:id", noop,
			server.WithActionName("getUser"),
			server.WithParams(server.PathParam("id", "number", validation.Constraints{Minimum: validation.Ptr(1.0)})),
			server.WithResponse("API.UserRes"))

	doc, err := NewFromConfig(reg, testConfig()).Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))

	assert.Equal(t, "3.0.0", doc.OpenAPI)
	assert.Equal(t, "users", doc.Info.Title)
	assert.Equal(t, "1.0.0", doc.Info.Version)
	require.Len(t, doc.Tags, 1)
	assert.Equal(t, "User operations", doc.Tags[0].Description)

	op := operation(t, doc, "/user/{id}", http.MethodGet)
	assert.Equal(t, "/user/{id}:get::getUser", op.OperationID)
	assert.Equal(t, "getUser", op.Summary)
	assert.Equal(t, []string{"user"}, op.Tags)
	assert.Nil(t, op.RequestBody)

	require.Len(t, op.Parameters, 1)
	assert.JSONEq(t,
		`{"name":"id","in":"path","required":true,"schema":{"type":"number","minimum":1}}`,
		mustJSON(t, op.Parameters[0].Value))

	def := op.Responses.Default()
	require.NotNil(t, def)
	assert.Equal(t, "#/components/schemas/UserRes", def.Value.Content.Get("application/json").Schema.Ref)
	assert.NotNil(t, op.Responses.Value("400"))

	user := doc.Components.Schemas["UserRes"]
	require.NotNil(t, user)
	assert.ElementsMatch(t, []string{"id", "username", "phone"}, user.Value.Required)
	assert.Contains(t, doc.Components.Schemas, ErrorResponseComponent)
}

func TestBuildIsIdempotent(t *testing.T) {
	reg := newRegistry(t, testConfig())
	c := reg.Controller("user", "/user")
	c.GET("/:id", noop, server.WithParams(server.PathParam("id", "number")), server.WithResponse("API.Profile"))
	c.POST("", noop, server.WithParams(server.AllBody("body", "API.Login")))
	b := New(reg)

	first, err := b.Build(t.Context())
	require.NoError(t, err)
	second, err := b.Build(t.Context())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.JSONEq(t, mustJSON(t, first), mustJSON(t, second))
}

func TestBuildHasNoDanglingRefs(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("profile", "/profile").GET("", noop, server.WithResponse("API.Profile"))

	doc, err := New(reg).Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))
	assert.Contains(t, doc.Components.Schemas, "Profile")
	assert.Contains(t, doc.Components.Schemas, "UserRes")
	assert.Contains(t, doc.Components.Schemas, "Role")

	doc.Components.Schemas["Broken"] = openapi3.NewSchemaRef("", openapi3.NewObjectSchema().
		WithPropertyRef("x", openapi3.NewSchemaRef("#/components/schemas/Missing", nil)))
	assert.ErrorIs(t, checkRefs(doc), schema.ErrDanglingRef)
}

func TestBuildRejectsPathParamWithoutSegment(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("user", "/user").GET("/:userId", noop,
		server.WithActionName("getUser"),
		server.WithParams(server.PathParam("id", "number")))

	_, err := New(reg).Build(t.Context())
	require.Error(t, err)
	assert.True(t, server.IsConfigError(err))
	assert.Contains(t, err.Error(), "controller user action getUser param id")
	assert.Contains(t, err.Error(), `path "/user/:userId" has no :id segment`)
}

func TestBuildMergesSingleBodyParams(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("login", "/login").POST("", noop, server.WithParams(
		server.Body("user", "string", validation.Constraints{
			Required: true, MinLength: validation.Ptr(uint64(3)), Description: "Login name",
		}),
		server.Body("role", "API.Role"),
	))

	doc, err := New(reg).Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))

	body := operation(t, doc, "/login", http.MethodPost).RequestBody
	require.NotNil(t, body)
	assert.True(t, body.Value.Required)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"user": {"type": "string", "minLength": 3, "description": "Login name"},
			"role": {"$ref": "#/components/schemas/Role"}
		},
		"required": ["user"]
	}`, mustJSON(t, body.Value.Content.Get("application/json").Schema))
	assert.Contains(t, doc.Components.Schemas, "Role")
}

func TestBuildWholeBodyWinsOverSingleBody(t *testing.T) {
	var buf bytes.Buffer
	reg := newRegistry(t, testConfig())
	reg.Controller("login", "/login").POST("", noop, server.WithParams(
		server.AllBody("body", "API.Login"),
		server.Body("user", "string"),
	))

	doc, err := New(reg, WithLogger(logger.NewWithWriter(&buf, "debug", nil))).Build(t.Context())
	require.NoError(t, err)

	body := operation(t, doc, "/login", http.MethodPost).RequestBody
	require.NotNil(t, body)
	assert.True(t, body.Value.Required)
	assert.Equal(t, "#/components/schemas/Login", body.Value.Content.Get("application/json").Schema.Ref)
	assert.Contains(t, buf.String(), "Whole-body parameter replaces single body properties")
}

func TestBuildExpandsWholeQuery(t *testing.T) {
	reg := newRegistry(t, testConfig())
	c := reg.Controller("search", "/search")
	c.GET("", noop, server.WithParams(server.AllQuery("query", "API.Search")))
	c.GET("/raw", noop, server.WithParams(server.AllQuery("query", "any")))

	doc, err := New(reg).Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))

	params := operation(t, doc, "/search", http.MethodGet).Parameters
	names := make([]string, 0, len(params))
	required := map[string]bool{}
	for _, p := range params {
		assert.Equal(t, openapi3.ParameterInQuery, p.Value.In)
		names = append(names, p.Value.Name)
		required[p.Value.Name] = p.Value.Required
	}
	assert.Equal(t, []string{"active", "limit", "q", "tags"}, names)
	assert.Equal(t, map[string]bool{"active": false, "limit": false, "q": true, "tags": false}, required)
	assert.Equal(t, "Search text", params[2].Value.Description)

	assert.Empty(t, operation(t, doc, "/search/raw", http.MethodGet).Parameters)
}

func TestBuildSingleParameters(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("org", "/org").GET("/:org/user/:id", noop, server.WithParams(
		server.PathParam("userID", "string", validation.Constraints{Name: "id", Description: "User id"}),
		server.Header("X-Token", "string", validation.Constraints{Required: true}),
		server.Query("page", "number", validation.Constraints{Default: 1.0}),
		server.Raw("ctx"),
	), server.WithDescription("Find a user"))

	doc, err := New(reg).Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))

	op := operation(t, doc, "/org/{org}/user/{id}", http.MethodGet)
	assert.Equal(t, "Find a user", op.Summary)
	require.Len(t, op.Parameters, 4)

	byName := map[string]*openapi3.Parameter{}
	for _, p := range op.Parameters {
		byName[p.Value.Name] = p.Value
	}
	assert.Equal(t, "User id", byName["id"].Description)
	assert.True(t, byName["id"].Required)
	assert.Equal(t, openapi3.ParameterInHeader, byName["X-Token"].In)
	assert.True(t, byName["X-Token"].Required)
	assert.False(t, byName["page"].Required)
	assert.Equal(t, 1.0, byName["page"].Schema.Value.Default)

	org := byName["org"]
	require.NotNil(t, org, "undeclared segment is documented")
	assert.True(t, org.Required)
	assert.True(t, org.Schema.Value.Type.Is(openapi3.TypeString))
}

func TestBuildAnyAndReplacement(t *testing.T) {
	reg := newRegistry(t, testConfig())
	c := reg.Controller("ping", "/ping")
	c.ANY("", noop, server.WithActionName("ping"))
	c.GET("", noop, server.WithActionName("pingGet"))

	doc, err := New(reg).Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))

	item := doc.Paths.Value("/ping")
	require.NotNil(t, item)
	assert.Len(t, item.Operations(), len(server.AnyMethods))
	assert.Equal(t, "/ping:post::ping", item.Post.OperationID)
	assert.Equal(t, "/ping:get::pingGet", item.Get.OperationID)
	assert.Nil(t, item.Get.Responses.Value("400"))
}

func TestBuildSecuritySchemes(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAPI.Security = map[string]config.SecuritySchemeConfig{
		"api_key": {Type: "apiKey", Name: "X-API-Key"},
		"bearer":  {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
	}
	reg := newRegistry(t, cfg)
	reg.Controller("user", "/user").GET("", noop)

	doc, err := NewFromConfig(reg, cfg).Build(t.Context())
	require.NoError(t, err)
	require.NoError(t, doc.Validate(t.Context()))

	key := doc.Components.SecuritySchemes["api_key"]
	require.NotNil(t, key)
	assert.Equal(t, "header", key.Value.In)

	op := operation(t, doc, "/user", http.MethodGet)
	require.NotNil(t, op.Security)
	assert.JSONEq(t, `[{"api_key":[]},{"bearer":[]}]`, mustJSON(t, op.Security))
}

func TestBuildSkipsUndocumentedControllers(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("internal", "/internal", server.WithDocumentation(false)).GET("", noop)
	reg.Controller("user", "/user").GET("", noop)

	doc, err := New(reg).Build(t.Context())
	require.NoError(t, err)
	assert.Nil(t, doc.Paths.Value("/internal"))
	assert.NotNil(t, doc.Paths.Value("/user"))
	require.Len(t, doc.Tags, 1)
	assert.Equal(t, "user", doc.Tags[0].Name)
}

func TestBuildDocumentsBasePathAsServer(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Path.Base = "/api/"
	reg := newRegistry(t, cfg)
	reg.Controller("user", "/user").GET("/:id", noop, server.WithParams(server.PathParam("id", "number")))

	doc, err := NewFromConfig(reg, cfg).Build(t.Context())
	require.NoError(t, err)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "/api", doc.Servers[0].URL)
	assert.NotNil(t, doc.Paths.Value("/user/{id}"))
	require.NoError(t, doc.Validate(t.Context()))

	doc, err = NewFromConfig(reg, testConfig()).Build(t.Context())
	require.NoError(t, err)
	assert.Empty(t, doc.Servers)
}

func cartType() any {
	type Item struct {
		SKU string `json:"sku"`
	}
	type Cart struct {
		Items []Item `json:"items"`
	}
	return Cart{}
}

func orderType() any {
	type Item struct {
		Quantity int `json:"quantity"`
	}
	type Order struct {
		Lines []Item `json:"lines"`
	}
	return Order{}
}

func TestBuildRejectsConflictingComponents(t *testing.T) {
	r := schema.NewStructReflector()
	require.NoError(t, r.Register("API.Cart", cartType()))
	require.NoError(t, r.Register("API.Order", orderType()))
	require.NoError(t, r.Init(t.Context()))
	reg := server.NewRegistry(testConfig(), r, logger.NewNop())

	shop := reg.Controller("shop", "/shop")
	shop.GET("/cart", noop, server.WithActionName("getCart"), server.WithResponse("API.Cart"))
	doc, err := New(reg).Build(t.Context())
	require.NoError(t, err)
	assert.Contains(t, doc.Components.Schemas, "Item")

	shop.GET("/cart/again", noop, server.WithResponse("API.Cart"))
	_, err = New(reg).Build(t.Context())
	require.NoError(t, err)

	shop.GET("/order", noop, server.WithActionName("getOrder"), server.WithResponse("API.Order"))
	_, err = New(reg).Build(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComponentConflict)
	assert.True(t, server.IsConfigError(err))
	assert.Contains(t, err.Error(), "action getOrder")
	assert.Contains(t, err.Error(), "Item")
}

func TestBuildExtraComponents(t *testing.T) {
	reg := newRegistry(t, testConfig())

	doc, err := New(reg, WithComponents("API.Profile")).Build(t.Context())
	require.NoError(t, err)
	assert.Contains(t, doc.Components.Schemas, "Profile")
	assert.Contains(t, doc.Components.Schemas, "UserRes")

	_, err = New(reg, WithComponents("API.Nope")).Build(t.Context())
	assert.ErrorIs(t, err, schema.ErrUnknownType)
}

func TestDocumentIsCachedByRegistryVersion(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("user", "/user").GET("", noop)
	b := New(reg)

	first, err := b.Document(t.Context())
	require.NoError(t, err)
	again, err := b.Document(t.Context())
	require.NoError(t, err)
	assert.Same(t, first, again)

	reg.Controller("order", "/order").GET("", noop)
	rebuilt, err := b.Document(t.Context())
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt)
	assert.NotNil(t, rebuilt.Paths.Value("/order"))
}

func TestBuildHonoursCancelledContext(t *testing.T) {
	reg := newRegistry(t, testConfig())
	reg.Controller("user", "/user").GET("", noop)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := New(reg).Build(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
