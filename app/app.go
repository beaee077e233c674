// Package app wires configuration, logging, the type reflector, the action
// registry, the document builder and the HTTP server into one service with
// an ordered startup and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/openapi"
	"github.com/gaborage/apidoc/schema"
	"github.com/gaborage/apidoc/server"
)

// ErrAlreadyPrepared is returned when modules are added after Prepare.
var ErrAlreadyPrepared = errors.New("app already prepared")

// ServerRunner abstracts the HTTP server so tests can inject their own.
type ServerRunner interface {
	Start() error
	Shutdown(ctx context.Context) error
	Echo() *echo.Echo
	ModuleGroup() server.RouteRegistrar
	SetReadiness(ready func() bool)
}

// Option customises an App.
type Option func(*App)

// WithReflector replaces the typings directory reflector.
func WithReflector(r schema.TypeReflector) Option {
	return func(a *App) { a.reflector = r }
}

// WithServer replaces the echo server.
func WithServer(s ServerRunner) Option {
	return func(a *App) { a.server = s }
}

// WithBuilderOptions passes options to the document builder.
func WithBuilderOptions(opts ...openapi.Option) Option {
	return func(a *App) { a.builderOpts = append(a.builderOpts, opts...) }
}

// App is a service built from modules.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	reflector   schema.TypeReflector
	server      ServerRunner
	modules     *ModuleRegistry
	registry    *server.Registry
	builder     *openapi.Builder
	builderOpts []openapi.Option

	prepared atomic.Bool
	ready    atomic.Bool
}

// New loads configuration from config.yaml and the environment and creates
// an app logging to stdout.
func New(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	return NewWithConfig(cfg, log, opts...), nil
}

// NewWithConfig creates an app from an already loaded configuration. Types
// are read from cfg.OpenAPI.TypingsPath unless WithReflector is given.
func NewWithConfig(cfg *config.Config, log logger.Logger, opts ...Option) *App {
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{cfg: cfg, logger: log}
	for _, opt := range opts {
		opt(a)
	}

	if a.reflector == nil {
		a.reflector = schema.NewDirReflector(cfg.OpenAPI.TypingsPath)
	}
	if a.server == nil {
		a.server = server.New(cfg, log)
	}
	a.server.SetReadiness(a.ready.Load)

	a.modules = NewModuleRegistry(&ModuleDeps{Logger: log, Config: cfg})
	a.registry = server.NewRegistry(cfg, a.reflector, log)
	a.builder = openapi.NewFromConfig(a.registry, cfg, append([]openapi.Option{openapi.WithLogger(log)}, a.builderOpts...)...)
	return a
}

// RegisterModule initialises module and schedules its routes for Prepare.
func (a *App) RegisterModule(module Module) error {
	if a.prepared.Load() {
		return fmt.Errorf("register %s: %w", module.Name(), ErrAlreadyPrepared)
	}
	return a.modules.Register(module)
}

// Config returns the app configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the app logger.
func (a *App) Logger() logger.Logger { return a.logger }

// Registry returns the action registry.
func (a *App) Registry() *server.Registry { return a.registry }

// Builder returns the document builder.
func (a *App) Builder() *openapi.Builder { return a.builder }

// Server returns the HTTP server.
func (a *App) Server() ServerRunner { return a.server }

// Ready reports whether Prepare completed.
func (a *App) Ready() bool { return a.ready.Load() }
