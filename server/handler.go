// Package server registers validated echo actions, extracts their
// arguments from requests and renders failures in a standard envelope.
package server

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/internal/tracking"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/validation"
)

// ActionFunc is the business handler of one action. It receives its
// extracted arguments in declaration order. A nil result writes 204.
type ActionFunc func(hc HandlerContext, args Args) (any, IAPIError)

// HandlerContext gives an action access to the request when it needs more
// than its arguments.
type HandlerContext struct {
	Echo   echo.Context
	Config *config.Config
	Logger logger.Logger
}

// Args holds the extracted arguments of one call. Positions without a rule
// hold the raw echo.Context.
type Args struct {
	names  []string
	values []any
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a.values) }

// Value returns the argument at position i, nil when out of range.
func (a Args) Value(i int) any {
	if i < 0 || i >= len(a.values) {
		return nil
	}
	return a.values[i]
}

// Get returns the argument declared as name.
func (a Args) Get(name string) (any, bool) {
	for i, n := range a.names {
		if n == name {
			return a.values[i], true
		}
	}
	return nil, false
}

// String returns the argument at i as a string, "" if it is not one.
func (a Args) String(i int) string {
	s, _ := a.Value(i).(string)
	return s
}

// Float returns the argument at i as a float64, 0 if it is not a number.
func (a Args) Float(i int) float64 {
	f, _ := a.Value(i).(float64)
	return f
}

// Int returns the argument at i truncated to int.
func (a Args) Int(i int) int {
	return int(a.Float(i))
}

// Bool returns the argument at i as a bool.
func (a Args) Bool(i int) bool {
	b, _ := a.Value(i).(bool)
	return b
}

// Map returns the argument at i as a JSON object, nil if it is not one.
func (a Args) Map(i int) map[string]any {
	m, _ := a.Value(i).(map[string]any)
	return m
}

// Context returns the raw echo.Context held at position i.
func (a Args) Context(i int) echo.Context {
	c, _ := a.Value(i).(echo.Context)
	return c
}

// Decode copies the argument at i into target, matching fields by their
// json tag names.
func (a Args) Decode(i int, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(a.Value(i))
}

// wrap turns an action into an echo handler: arguments are extracted in
// order, the first rejected value ends the request with 400.
func (r *Registry) wrap(ctrl *ControllerInfo, action *ActionInfo) echo.HandlerFunc {
	route := ctrl.RoutePath(action)

	return func(c echo.Context) error {
		args := Args{
			names:  action.ParameterNames,
			values: make([]any, len(action.ParameterNames)),
		}

		for i, name := range action.ParameterNames {
			rule := action.ParameterRules[i]
			if rule == nil {
				args.values[i] = c
				continue
			}

			value, err := rule.Extract(c, name)
			if err == nil {
				args.values[i] = value
				continue
			}

			var ve *validation.ValidationError
			if errors.As(err, &ve) {
				tracking.RecordRejection(c.Request().Context(), route, c.Request().Method, rule.Source.String())
				return NewValidationFailure(ve)
			}

			r.log.Error().
				Err(err).
				Str("controller", ctrl.Name).
				Str("action", action.Name).
				Str("param", name).
				Msg("Parameter rule failed")
			return NewInternalServerError("").WithDetails("error", fmt.Sprintf("param %s: %v", name, err))
		}

		hc := HandlerContext{Echo: c, Config: r.cfg, Logger: r.log}
		out, apiErr := action.Handler(hc, args)
		if apiErr != nil {
			if err, ok := apiErr.(error); ok {
				return err
			}
			return formatErrorResponse(c, apiErr, r.cfg)
		}
		return writeResult(c, out)
	}
}
