package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
)

const (
	healthRoute = "/health"
	readyRoute  = "/ready"
)

// Server is the echo instance every controller is mounted on.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	logger   logger.Logger
	basePath string
	ready    func() bool
}

// New creates an echo server with the error envelope, the standard
// middleware chain and health routes.
func New(cfg *config.Config, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, cfg)
	}

	s := &Server{
		echo:     e,
		cfg:      cfg,
		logger:   log,
		basePath: normalizePrefix(cfg.Server.Path.Base),
	}

	SetupMiddlewares(e, log, s.healthPaths()...)

	e.GET(s.healthPaths()[0], s.healthCheck)
	e.GET(s.healthPaths()[1], s.readyCheck)

	log.Debug().
		Str("base_path", s.basePath).
		Msg("Server paths configured")
	return s
}

func (s *Server) healthPaths() []string {
	return []string{JoinPath(s.basePath, healthRoute), JoinPath(s.basePath, readyRoute)}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ModuleGroup returns the registrar controllers are mounted on, rooted at
// the configured base path.
func (s *Server) ModuleGroup() RouteRegistrar {
	return NewRouteGroup(s.echo.Group(s.basePath), s.basePath)
}

// SetReadiness installs the check behind the ready route.
func (s *Server) SetReadiness(ready func() bool) {
	s.ready = ready
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.logger.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", addr).
		Msg("Starting server...")

	s.echo.Server.ReadTimeout = s.cfg.Server.Timeout.Read
	s.echo.Server.WriteTimeout = s.cfg.Server.Timeout.Write
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(c echo.Context) error {
	if s.ready != nil && !s.ready() {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"time":   time.Now().Unix(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
