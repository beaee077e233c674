package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gaborage/apidoc/internal/tracking"
	"github.com/gaborage/apidoc/logger"
)

// SetupMiddlewares installs request ids, metrics, request logging, panic
// recovery and a body limit. Requests to skipPaths are not logged.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, skipPaths ...string) {
	e.Use(middleware.RequestID())
	e.Use(tracking.HTTPMetrics())
	e.Use(Logger(log, skipPaths...))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("stack", string(stack)).
				Msg("Panic recovered")
			return err
		},
	}))

	e.Use(middleware.BodyLimit("10M"))
}
