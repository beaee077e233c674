package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/schema"
)

// Registry holds every controller and action of a process. Modules
// register into it during startup; the document builder and the mounted
// handlers read it afterwards.
type Registry struct {
	cfg      *config.Config
	log      logger.Logger
	resolver *schema.Resolver

	mu          sync.RWMutex
	controllers []*ControllerInfo
	documented  []*ControllerInfo
	version     atomic.Uint64
}

// NewRegistry creates an empty registry resolving types through reflector.
func NewRegistry(cfg *config.Config, reflector schema.TypeReflector, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		log:      log,
		resolver: schema.NewResolver(reflector),
	}
}

// Resolver returns the schema resolver shared by all rules.
func (r *Registry) Resolver() *schema.Resolver { return r.resolver }

// Config returns the configuration the registry was built with.
func (r *Registry) Config() *config.Config { return r.cfg }

// Version increments on every registration.
func (r *Registry) Version() uint64 { return r.version.Load() }

// Controller registers a controller under prefix and returns the handle
// its actions are added through.
func (r *Registry) Controller(name, prefix string, opts ...ControllerOption) *Controller {
	info := &ControllerInfo{
		Name:    name,
		Prefix:  normalizePrefix(prefix),
		Options: ControllerOptions{Documented: true},
	}
	for _, opt := range opts {
		opt(&info.Options)
	}

	r.mu.Lock()
	r.controllers = append(r.controllers, info)
	if info.Options.Documented && r.docsEnabled() {
		r.documented = append(r.documented, info)
	}
	r.mu.Unlock()
	r.version.Add(1)

	return &Controller{info: info, registry: r}
}

func (r *Registry) docsEnabled() bool {
	return r.cfg == nil || r.cfg.OpenAPI.Enable
}

// Controllers returns every registered controller.
func (r *Registry) Controllers() []*ControllerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.controllers)
}

// Documented returns the controllers that appear in the document.
func (r *Registry) Documented() []*ControllerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.documented)
}

// Validate checks every rule against the type registry and compiles the
// validators of path, header and query parameters. All problems are
// reported together as *ConfigError values.
func (r *Registry) Validate(ctx context.Context) error {
	var errs []error
	for _, ctrl := range r.Controllers() {
		for _, action := range ctrl.Actions() {
			errs = append(errs, r.validateAction(ctx, ctrl, action)...)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) validateAction(ctx context.Context, ctrl *ControllerInfo, action *ActionInfo) []error {
	var errs []error
	fail := func(param, msg string, err error) {
		errs = append(errs, &ConfigError{Controller: ctrl.Name, Action: action.Name, Param: param, Message: msg, Err: err})
	}

	if action.Method != MethodAny && !slices.Contains(AnyMethods, action.Method) {
		fail("", fmt.Sprintf("unsupported method %q", action.Method), nil)
	}
	if action.Handler == nil {
		fail("", "handler is nil", nil)
	}

	if ok, err := r.resolver.Known(action.ResponseType()); err != nil || !ok {
		fail("", fmt.Sprintf("unknown response type %q", action.ResponseType()), errors.Join(err, schema.ErrUnknownType))
	}

	segments := PathParams(ctrl.RoutePath(action))
	for pos, name := range action.ParameterNames {
		rule := action.ParameterRules[pos]
		if rule == nil {
			continue
		}
		wire := rule.WireName(name)

		ok, err := r.resolver.Known(rule.Type)
		if err != nil {
			fail(name, "cannot check type", err)
			continue
		}
		if !ok {
			fail(name, fmt.Sprintf("unknown type %q", rule.Type), schema.ErrUnknownType)
			continue
		}

		if rule.Source.Single() {
			if rule.Type != schema.TypeString && rule.Type != schema.TypeNumber {
				fail(name, fmt.Sprintf("%s parameters must be string or number, not %q", rule.Source, rule.Type), nil)
				continue
			}
			if _, err := rule.Validator(ctx, wire); err != nil {
				fail(name, "invalid constraints", err)
			}
		}
		if rule.Source == SourcePath && !slices.Contains(segments, wire) {
			fail(name, fmt.Sprintf("path %q has no :%s segment", ctrl.RoutePath(action), wire), nil)
		}
	}
	return errs
}

// Precompile builds the validator of every rule, including object rules
// that would otherwise compile on first request.
func (r *Registry) Precompile(ctx context.Context) error {
	var errs []error
	for _, ctrl := range r.Controllers() {
		for _, action := range ctrl.Actions() {
			for pos, name := range action.ParameterNames {
				rule := action.ParameterRules[pos]
				if rule == nil || !rule.Validated() {
					continue
				}
				if _, err := rule.Validator(ctx, rule.WireName(name)); err != nil {
					errs = append(errs, &ConfigError{
						Controller: ctrl.Name, Action: action.Name, Param: name,
						Message: "cannot compile validator", Err: err,
					})
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Mount adds every action to registrar. Each controller becomes a group
// carrying its middleware; ANY actions are added once per method.
func (r *Registry) Mount(registrar RouteRegistrar) {
	for _, ctrl := range r.Controllers() {
		group := registrar.Group(ctrl.Prefix, ctrl.Options.Middleware...)
		for _, action := range ctrl.Actions() {
			handler := r.wrap(ctrl, action)
			for _, method := range action.Methods() {
				group.Add(method, action.Path, handler, action.Options.Middleware...)
			}
			r.log.Debug().
				Str("controller", ctrl.Name).
				Str("action", action.Name).
				Str("method", action.Method).
				Str("path", group.FullPath(action.Path)).
				Int("params", len(action.ParameterNames)).
				Msg("Action mounted")
		}
	}
}

// Controller registers actions of one ControllerInfo.
type Controller struct {
	info     *ControllerInfo
	registry *Registry
}

// Info returns the controller metadata.
func (c *Controller) Info() *ControllerInfo { return c.info }

// Handle registers an action for method and path relative to the
// controller prefix.
func (c *Controller) Handle(method, path string, handler ActionFunc, opts ...ActionOption) *ActionInfo {
	action := newAction(method, path, handler, opts)
	for _, rule := range action.ParameterRules {
		rule.resolver = c.registry.resolver
	}

	c.registry.mu.Lock()
	c.info.actions = append(c.info.actions, action)
	c.registry.mu.Unlock()
	c.registry.version.Add(1)
	return action
}

// GET registers a GET action.
func (c *Controller) GET(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(http.MethodGet, path, h, opts...)
}

// POST registers a POST action.
func (c *Controller) POST(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(http.MethodPost, path, h, opts...)
}

// PUT registers a PUT action.
func (c *Controller) PUT(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(http.MethodPut, path, h, opts...)
}

// PATCH registers a PATCH action.
func (c *Controller) PATCH(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(http.MethodPatch, path, h, opts...)
}

// DELETE registers a DELETE action.
func (c *Controller) DELETE(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(http.MethodDelete, path, h, opts...)
}

// HEAD registers a HEAD action.
func (c *Controller) HEAD(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(http.MethodHead, path, h, opts...)
}

// OPTIONS registers an OPTIONS action.
func (c *Controller) OPTIONS(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(http.MethodOptions, path, h, opts...)
}

// ANY registers an action answering every method.
func (c *Controller) ANY(path string, h ActionFunc, opts ...ActionOption) *ActionInfo {
	return c.Handle(MethodAny, path, h, opts...)
}

// Routes lists method and full path of every mounted route, for logging
// and tests.
func (r *Registry) Routes() []echo.Route {
	var out []echo.Route
	for _, ctrl := range r.Controllers() {
		for _, action := range ctrl.Actions() {
			for _, m := range action.Methods() {
				out = append(out, echo.Route{Method: m, Path: ctrl.RoutePath(action), Name: action.Name})
			}
		}
	}
	return out
}
