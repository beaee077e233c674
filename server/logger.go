package server

import (
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/logger"
)

// Logger returns middleware writing one summary line per request. 5xx
// responses log at error, 4xx at warn, the rest at info.
func Logger(log logger.Logger, skipPaths ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if slices.Contains(skipPaths, path) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				// render the envelope now so the logged status is final
				c.Error(err)
			}

			status := c.Response().Status
			var event logger.LogEvent
			switch {
			case status >= 500:
				event = log.Error()
			case status >= 400:
				event = log.Warn()
			default:
				event = log.Info()
			}
			if err != nil {
				event = event.Err(err)
			}

			event.
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("route", path).
				Str("uri", c.Request().RequestURI).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("Request completed")
			return nil
		}
	}
}
