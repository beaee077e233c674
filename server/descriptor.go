package server

import (
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/internal/reflection"
	"github.com/gaborage/apidoc/schema"
)

// ActionOptions are the per-route options of an action.
type ActionOptions struct {
	Description string
	Summary     string
	// Responses is the type name of the success payload, "any" by default.
	Responses  string
	Middleware []echo.MiddlewareFunc
}

// ActionInfo describes one registered action. It is not modified after
// registration.
type ActionInfo struct {
	Path           string
	Method         string
	Options        ActionOptions
	Name           string
	ParameterNames []string
	ParameterRules map[int]*ParameterRule
	Handler        ActionFunc
}

// Methods returns the concrete HTTP methods the action answers.
func (a *ActionInfo) Methods() []string {
	if a.Method == MethodAny {
		return slices.Clone(AnyMethods)
	}
	return []string{a.Method}
}

// Rules returns the rules of the action ordered by position.
func (a *ActionInfo) Rules() []*ParameterRule {
	out := make([]*ParameterRule, 0, len(a.ParameterRules))
	for i := range a.ParameterNames {
		if rule := a.ParameterRules[i]; rule != nil {
			out = append(out, rule)
		}
	}
	return out
}

// ResponseType returns the declared response type name.
func (a *ActionInfo) ResponseType() string {
	if a.Options.Responses == "" {
		return schema.TypeAny
	}
	return a.Options.Responses
}

// ActionOption configures an action at registration.
type ActionOption func(*ActionInfo)

// WithParams declares the handler arguments in order. Each action gets its
// own copy of a rule, so one Param may be declared on several actions.
func WithParams(params ...Param) ActionOption {
	return func(a *ActionInfo) {
		for _, p := range params {
			pos := len(a.ParameterNames)
			a.ParameterNames = append(a.ParameterNames, p.name)
			if p.rule != nil {
				rule := p.rule.clone()
				rule.Position = pos
				a.ParameterRules[pos] = rule
			}
		}
	}
}

// WithResponse sets the type name of the success payload.
func WithResponse(typeName string) ActionOption {
	return func(a *ActionInfo) { a.Options.Responses = typeName }
}

// WithDescription sets the operation description.
func WithDescription(description string) ActionOption {
	return func(a *ActionInfo) { a.Options.Description = description }
}

// WithSummary sets the operation summary. It defaults to the description,
// then the action name.
func WithSummary(summary string) ActionOption {
	return func(a *ActionInfo) { a.Options.Summary = summary }
}

// WithMiddleware adds route-level middleware.
func WithMiddleware(mw ...echo.MiddlewareFunc) ActionOption {
	return func(a *ActionInfo) { a.Options.Middleware = append(a.Options.Middleware, mw...) }
}

// WithActionName overrides the name derived from the handler function.
func WithActionName(name string) ActionOption {
	return func(a *ActionInfo) { a.Name = name }
}

func newAction(method, path string, handler ActionFunc, opts []ActionOption) *ActionInfo {
	a := &ActionInfo{
		Path:           path,
		Method:         method,
		Handler:        handler,
		ParameterRules: make(map[int]*ParameterRule),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Name == "" {
		a.Name = reflection.ExtractHandlerName(handler)
	}
	return a
}

// ControllerOptions are the per-controller options.
type ControllerOptions struct {
	Description string
	Middleware  []echo.MiddlewareFunc
	// Documented controllers appear in the OpenAPI document.
	Documented bool
}

// ControllerOption configures a controller.
type ControllerOption func(*ControllerOptions)

// WithControllerDescription sets the tag description of the controller.
func WithControllerDescription(description string) ControllerOption {
	return func(o *ControllerOptions) { o.Description = description }
}

// WithControllerMiddleware adds middleware to every action of the controller.
func WithControllerMiddleware(mw ...echo.MiddlewareFunc) ControllerOption {
	return func(o *ControllerOptions) { o.Middleware = append(o.Middleware, mw...) }
}

// WithDocumentation opts the controller in or out of the document.
// Controllers are documented by default.
func WithDocumentation(enabled bool) ControllerOption {
	return func(o *ControllerOptions) { o.Documented = enabled }
}

// ControllerInfo groups actions under a path prefix.
type ControllerInfo struct {
	Name    string
	Prefix  string
	Options ControllerOptions

	actions []*ActionInfo
}

// Actions returns the actions in registration order.
func (c *ControllerInfo) Actions() []*ActionInfo {
	return slices.Clone(c.actions)
}

// RoutePath is the echo path of action below the controller prefix.
func (c *ControllerInfo) RoutePath(a *ActionInfo) string {
	if p := JoinPath(c.Prefix, a.Path); p != "" {
		return p
	}
	return "/"
}
