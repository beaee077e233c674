package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
)

func TestCustomErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		debug       bool
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails bool
	}{
		{
			name: "api error", env: config.EnvProduction,
			err:        NewConflictError("already exists"),
			wantStatus: http.StatusConflict, wantCode: "CONFLICT", wantMessage: "already exists",
		},
		{
			name: "echo http error", env: config.EnvProduction,
			err:        echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"),
			wantStatus: http.StatusMethodNotAllowed, wantCode: "METHOD_NOT_ALLOWED", wantMessage: "nope",
		},
		{
			name: "plain error hidden in production", env: config.EnvProduction,
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR",
			wantMessage: "An error occurred while processing your request",
		},
		{
			name: "plain error in debug development", env: config.EnvDevelopment, debug: true,
			err:        errors.New("db down"),
			wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR",
			wantMessage: "Internal server error", wantDetails: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{App: config.AppConfig{Env: tt.env, Debug: tt.debug}}
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", http.NoBody), rec)

			customErrorHandler(tt.err, c, cfg)

			res := response{Code: rec.Code}
			require.NoError(t, jsonDecode(rec, &res.Body))
			assert.Equal(t, tt.wantStatus, res.Code)
			errObj := res.Body["error"].(map[string]any)
			assert.Equal(t, tt.wantCode, errObj["code"])
			assert.Equal(t, tt.wantMessage, errObj["message"])
			_, hasDetails := errObj["details"]
			assert.Equal(t, tt.wantDetails, hasDetails)
			assert.NotEmpty(t, res.Body["meta"].(map[string]any)["traceId"])
			assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		})
	}
}

func TestServerHealthAndReadiness(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Path.Base = "/api"
	s := New(cfg, logger.NewNop())

	res := do(t, s.Echo(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "ok", res.Body["status"])

	ready := false
	s.SetReadiness(func() bool { return ready })
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Echo(), http.MethodGet, "/api/ready", "").Code)
	ready = true
	assert.Equal(t, http.StatusOK, do(t, s.Echo(), http.MethodGet, "/api/ready", "").Code)

	res = do(t, s.Echo(), http.MethodGet, "/api/missing", "")
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, "NOT_FOUND", res.Body["error"].(map[string]any)["code"])
}

func TestServerMountsRegistryUnderBasePath(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Path.Base = "/api"
	s := New(cfg, logger.NewNop())

	reg := NewRegistry(cfg, testReflector(t), logger.NewNop())
	reg.Controller("user", "/user").GET("/:id", echoArgs, WithParams(PathParam("id", "number")))
	reg.Mount(s.ModuleGroup())

	res := do(t, s.Echo(), http.MethodGet, "/api/user/3", "")
	assert.Equal(t, http.StatusOK, res.Code, res.Raw)
	assert.Equal(t, 3.0, res.Body["id"])
	assert.NotEmpty(t, res.Raw)
}

func TestRecoverMiddlewareRendersEnvelope(t *testing.T) {
	s := New(testConfig(), logger.NewNop())
	s.Echo().GET("/boom", func(echo.Context) error { panic("boom") })

	res := do(t, s.Echo(), http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, "INTERNAL_ERROR", res.Body["error"].(map[string]any)["code"])
}
