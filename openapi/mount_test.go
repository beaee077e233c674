package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/gaborage/apidoc/server"
	"github.com/gaborage/apidoc/validation"
)

func serve(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func TestMountServesDocumentAndUI(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(t, cfg)
	reg.Controller("user", "/user").GET("/:id", noop,
		server.WithParams(server.PathParam("id", "number", validation.Constraints{Minimum: validation.Ptr(1.0)})),
		server.WithResponse("API.UserRes"))

	e := echo.New()
	root := server.NewRouteGroup(e.Group("/api"), "/api")
	Mount(root, NewFromConfig(reg, cfg), cfg.OpenAPI)

	rec := serve(t, e, "/api/swagger-ui")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML)
	page := rec.Body.String()
	assert.Contains(t, page, "swagger-ui-dist@3.35.1/swagger-ui-bundle.js")
	assert.Contains(t, page, "<title>users</title>")
	assert.Contains(t, page, `url: "/api/swagger-ui/api.json"`)

	rec = serve(t, e, "/api/swagger-ui/api.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fromJSON))
	assert.Equal(t, "3.0.0", fromJSON["openapi"])
	assert.Contains(t, fromJSON["paths"], "/user/{id}")

	rec = serve(t, e, "/api/swagger-ui/api.yaml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get(echo.HeaderContentType))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &fromYAML))
	assert.Equal(t, fromJSON, fromYAML)
}

func TestMountDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAPI.Enable = false
	reg := newRegistry(t, cfg)

	e := echo.New()
	Mount(server.NewRouteGroup(e.Group(""), ""), NewFromConfig(reg, cfg), cfg.OpenAPI)

	assert.Equal(t, http.StatusNotFound, serve(t, e, "/swagger-ui").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, e, "/swagger-ui/api.json").Code)
}

func TestMountReportsBuildFailure(t *testing.T) {
	cfg := testConfig()
	reg := newRegistry(t, cfg)
	reg.Controller("user", "/user").GET("/:userId", noop, server.WithParams(server.PathParam("id", "number")))

	e := echo.New()
	Mount(server.NewRouteGroup(e.Group(""), ""), NewFromConfig(reg, cfg), cfg.OpenAPI)

	assert.Equal(t, http.StatusInternalServerError, serve(t, e, "/swagger-ui/api.json").Code)
	assert.Equal(t, http.StatusOK, serve(t, e, "/swagger-ui").Code)
}
