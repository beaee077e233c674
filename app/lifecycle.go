package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gaborage/apidoc/openapi"
	"github.com/gaborage/apidoc/schema"
)

const (
	serverErrorMsg         = "server: %w"
	defaultShutdownTimeout = 10 * time.Second
	drainTimeout           = 3 * time.Second
)

// Prepare runs the startup sequence: type registration, reflector
// initialisation, module routes, registry validation, validator
// precompilation, route mounting and a first document build. Any failure
// is a configuration error and the app must not start.
func (a *App) Prepare(ctx context.Context) error {
	if !a.prepared.CompareAndSwap(false, true) {
		return ErrAlreadyPrepared
	}
	start := time.Now()

	if sr, ok := a.reflector.(*schema.StructReflector); ok {
		if err := a.modules.RegisterTypes(sr); err != nil {
			return fmt.Errorf("register types: %w", err)
		}
	}
	if !a.reflector.Ready() {
		if err := a.reflector.Init(ctx); err != nil {
			return fmt.Errorf("initialise type reflector: %w", err)
		}
	}
	a.logger.Info().
		Int("types", len(a.reflector.Symbols())).
		Msg("Type reflector ready")

	a.modules.RegisterRoutes(a.registry)

	if err := a.registry.Validate(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Route configuration is invalid")
		return err
	}
	if err := a.registry.Precompile(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Validator compilation failed")
		return err
	}

	group := a.server.ModuleGroup()
	a.registry.Mount(group)

	if a.cfg.OpenAPI.Enable {
		if _, err := a.builder.Document(ctx); err != nil {
			a.logger.Error().Err(err).Msg("OpenAPI document build failed")
			return err
		}
		openapi.Mount(group, a.builder, a.cfg.OpenAPI)
		a.logger.Info().
			Str("ui", group.FullPath(a.cfg.OpenAPI.RouterPrefix)).
			Msg("OpenAPI documentation mounted")
	}

	a.ready.Store(true)
	a.logger.Info().
		Int("controllers", len(a.registry.Controllers())).
		Int("routes", len(a.registry.Routes())).
		Dur("duration", time.Since(start)).
		Msg("Application prepared")
	return nil
}

// Run prepares the app when needed, serves until ctx is cancelled or the
// server fails, then shuts down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	if !a.prepared.Load() {
		if err := a.Prepare(ctx); err != nil {
			return err
		}
	}

	serverErrCh := a.serve()

	var serverErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutdown requested")
	case err, ok := <-serverErrCh:
		if ok {
			serverErr = err
		}
		serverErrCh = nil
		if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
			a.logger.Error().Err(serverErr).Msg("Server stopped unexpectedly")
		}
	}

	timeout := a.cfg.Server.Timeout.Shutdown
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	if err := a.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.drainServerError(serverErrCh); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf(serverErrorMsg, err))
	}
	if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf(serverErrorMsg, serverErr))
	}
	return errors.Join(errs...)
}

// Shutdown stops the server and then every module.
func (a *App) Shutdown(ctx context.Context) error {
	a.ready.Store(false)

	var errs []error
	serverStart := time.Now()
	a.logger.Info().Msg("Shutting down HTTP server")
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf(serverErrorMsg, err))
		a.logger.Error().Err(err).Msg("Failed to shutdown server")
	} else {
		a.logger.Info().Dur("duration", time.Since(serverStart)).Msg("HTTP server shutdown completed")
	}

	a.modules.Shutdown()
	a.logger.Info().Msg("Application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) serve() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
		close(errCh)
	}()
	return errCh
}

func (a *App) drainServerError(ch <-chan error) error {
	if ch == nil {
		return nil
	}
	select {
	case err := <-ch:
		return err
	case <-time.After(drainTimeout):
		a.logger.Warn().Msg("Timeout waiting for server goroutine to complete")
		return errors.New("server goroutine failed to complete within timeout")
	}
}
