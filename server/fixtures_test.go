package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/schema"
)

const testTypings = `
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
  Search:
    type: object
    properties:
      q: {type: string, minLength: 1}
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
		App:     config.AppConfig{Name: "test", Version: "v0", Env: config.EnvDevelopment},
		OpenAPI: config.OpenAPIConfig{Enable: true, RouterPrefix: "/swagger-ui", Version: "1.0.0"},
	}
}

func testReflector(t *testing.T) schema.TypeReflector {
	t.Helper()
	r := schema.NewFSReflector(fstest.MapFS{"api.yaml": {Data: []byte(testTypings)}})
	require.NoError(t, r.Init(context.Background()))
	return r
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(testConfig(), testReflector(t), logger.NewNop())
}

// mount validates reg and serves it from a bare echo instance.
func mount(t *testing.T, reg *Registry) *echo.Echo {
	t.Helper()
	require.NoError(t, reg.Validate(context.Background()))
	require.NoError(t, reg.Precompile(context.Background()))

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, reg.Config())
	}
	reg.Mount(NewRouteGroup(e.Group(""), ""))
	return e
}

type response struct {
	Code int
	Body map[string]any
	Raw  string
}

func do(t *testing.T, e *echo.Echo, method, target, body string, headers ...string) response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Raw: rec.Body.String()}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out.Body)
	}
	return out
}

func errorMessage(r response) string {
	errObj, _ := r.Body["error"].(map[string]any)
	msg, _ := errObj["message"].(string)
	return msg
}

// echoArgs is an action returning its arguments by declared name.
func echoArgs(_ HandlerContext, args Args) (any, IAPIError) {
	out := make(map[string]any, args.Len())
	for i, name := range args.names {
		if _, raw := args.Value(i).(echo.Context); raw {
			out[name] = "<context>"
			continue
		}
		out[name] = args.Value(i)
	}
	return out, nil
}

func jsonDecode(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}
