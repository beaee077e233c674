package app

import (
	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/schema"
	"github.com/gaborage/apidoc/server"
)

// Module is one feature area of a service. Modules declare their
// controllers and actions on the shared registry.
type Module interface {
	Name() string
	Init(deps *ModuleDeps) error
	RegisterRoutes(reg *server.Registry)
	Shutdown() error
}

// TypeRegistrar is implemented by modules that describe their payloads with
// Go structs. RegisterTypes runs before the reflector is initialised and is
// only called when the app reflects Go structs.
type TypeRegistrar interface {
	RegisterTypes(r *schema.StructReflector) error
}

// ModuleDeps are the dependencies injected into every module.
type ModuleDeps struct {
	Logger logger.Logger
	Config *config.Config
}

// ModuleRegistry keeps registered modules in registration order.
type ModuleRegistry struct {
	modules []Module
	deps    *ModuleDeps
	logger  logger.Logger
}

// NewModuleRegistry creates an empty module registry.
func NewModuleRegistry(deps *ModuleDeps) *ModuleRegistry {
	return &ModuleRegistry{deps: deps, logger: deps.Logger}
}

// Register initialises module and adds it to the registry.
func (r *ModuleRegistry) Register(module Module) error {
	r.logger.Info().
		Str("module", module.Name()).
		Msg("Registering module")

	if err := module.Init(r.deps); err != nil {
		return err
	}
	r.modules = append(r.modules, module)
	return nil
}

// Modules returns the registered modules.
func (r *ModuleRegistry) Modules() []Module {
	return r.modules
}

// RegisterTypes lets every TypeRegistrar add its structs to reflector.
func (r *ModuleRegistry) RegisterTypes(reflector *schema.StructReflector) error {
	for _, module := range r.modules {
		tr, ok := module.(TypeRegistrar)
		if !ok {
			continue
		}
		if err := tr.RegisterTypes(reflector); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRoutes calls RegisterRoutes on every module in order.
func (r *ModuleRegistry) RegisterRoutes(reg *server.Registry) {
	for _, module := range r.modules {
		r.logger.Info().
			Str("module", module.Name()).
			Msg("Registering module routes")

		module.RegisterRoutes(reg)
	}
}

// Shutdown calls Shutdown on every module. Failures are logged, not returned.
func (r *ModuleRegistry) Shutdown() {
	for _, module := range r.modules {
		r.logger.Info().
			Str("module", module.Name()).
			Msg("Shutting down module")

		if err := module.Shutdown(); err != nil {
			r.logger.Error().
				Err(err).
				Str("module", module.Name()).
				Msg("Failed to shutdown module")
		}
	}
}
