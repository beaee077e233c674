package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"

	"github.com/gaborage/apidoc/schema"
	"github.com/gaborage/apidoc/validation"
)

// bodyKey caches the decoded JSON body on the echo context.
const bodyKey = "apidoc.body"

type decodedBody struct {
	value   any
	present bool
	err     error
}

// Extract reads the argument declared as name from the request and checks
// it against the rule. A rejected value yields *validation.ValidationError;
// any other error means the rule itself could not be compiled.
func (r *ParameterRule) Extract(c echo.Context, name string) (any, error) {
	wire := r.WireName(name)

	switch r.Source {
	case SourcePath, SourceHeader, SourceQuery:
		return r.extractSingle(c, wire)
	case SourceQueryAll:
		return r.extractQuery(c, wire)
	case SourceBodyAll:
		return r.extractBody(c, wire)
	case SourceBody:
		return r.extractBodyProperty(c, wire)
	default:
		return nil, fmt.Errorf("unsupported parameter source %s", r.Source)
	}
}

func (r *ParameterRule) extractSingle(c echo.Context, wire string) (any, error) {
	reported := wire
	if r.Source == SourceHeader {
		reported = strings.ToLower(wire)
	}

	raw, ok := r.lookupSingle(c, wire)
	if !ok {
		if r.Source == SourcePath || r.Constraints.Required {
			return nil, validation.Required(reported)
		}
		return r.Constraints.Default, nil
	}

	value := coerceScalar(r.Type, raw)
	if !r.Validated() {
		return value, nil
	}
	v, err := r.Validator(c.Request().Context(), wire)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(map[string]any{singleKey: value}); err != nil {
		return nil, scope(err, reported, singleKey)
	}
	return value, nil
}

func (r *ParameterRule) lookupSingle(c echo.Context, wire string) (string, bool) {
	var raw string
	switch r.Source {
	case SourcePath:
		raw = c.Param(wire)
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
	case SourceHeader:
		raw = c.Request().Header.Get(wire)
	case SourceQuery:
		raw = c.QueryParam(wire)
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (r *ParameterRule) extractQuery(c echo.Context, wire string) (any, error) {
	params := c.QueryParams()
	if !r.Validated() {
		return firstValues(params), nil
	}

	v, err := r.Validator(c.Request().Context(), wire)
	if err != nil {
		return nil, err
	}
	value := coerceQuery(params, v.Schema())
	if err := v.Validate(value); err != nil {
		return nil, scope(err, "", "")
	}
	return value, nil
}

func (r *ParameterRule) extractBody(c echo.Context, wire string) (any, error) {
	body, err := readBody(c)
	if err != nil {
		return nil, err
	}
	if !r.Validated() {
		return body.value, nil
	}
	if !body.present {
		if r.Constraints.Default != nil {
			return r.Constraints.Default, nil
		}
		return nil, &validation.ValidationError{Violations: []validation.Violation{{Message: "request body is required"}}}
	}

	v, err := r.Validator(c.Request().Context(), wire)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(body.value); err != nil {
		return nil, scope(err, "", "")
	}
	return body.value, nil
}

func (r *ParameterRule) extractBodyProperty(c echo.Context, wire string) (any, error) {
	body, err := readBody(c)
	if err != nil {
		return nil, err
	}

	obj, _ := body.value.(map[string]any)
	value, ok := obj[wire]
	if !ok {
		if r.Constraints.Required {
			return nil, validation.Required(wire)
		}
		return r.Constraints.Default, nil
	}
	if !r.Validated() {
		return value, nil
	}

	v, err := r.Validator(c.Request().Context(), wire)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(map[string]any{wire: value}); err != nil {
		return nil, scope(err, wire, wire)
	}
	return value, nil
}

func scope(err error, param, wrapper string) error {
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		return ve.Scoped(param, wrapper)
	}
	return err
}

// readBody decodes the request body once per request through the echo
// JSON serializer. The raw bytes are put back so later readers see the
// original body.
func readBody(c echo.Context) (*decodedBody, error) {
	if cached, ok := c.Get(bodyKey).(*decodedBody); ok {
		return cached, cached.err
	}

	body := &decodedBody{}
	req := c.Request()
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(data))
		switch {
		case err != nil:
			body.err = fmt.Errorf("read request body: %w", err)
		case len(bytes.TrimSpace(data)) > 0:
			body.present = true
			if err := c.Echo().JSONSerializer.Deserialize(c, &body.value); err != nil {
				body.err = &validation.ValidationError{Violations: []validation.Violation{{Message: "request body must be valid JSON"}}}
			}
			req.Body = io.NopCloser(bytes.NewReader(data))
		}
	}

	c.Set(bodyKey, body)
	return body, body.err
}

func coerceScalar(typeName, raw string) any {
	if typeName != schema.TypeNumber {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// firstValues returns the first value of every query key as sent.
func firstValues(params url.Values) map[string]any {
	out := make(map[string]any, len(params))
	for k, vals := range params {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// coerceQuery converts query strings to the types the properties of s
// declare. Values that do not parse are left as strings so the validator
// reports them.
func coerceQuery(params url.Values, s *openapi3.Schema) map[string]any {
	out := make(map[string]any, len(params))
	for k, vals := range params {
		if len(vals) == 0 {
			continue
		}
		out[k] = strings.TrimSpace(vals[0])

		var prop *openapi3.SchemaRef
		if s != nil {
			prop = s.Properties[k]
		}
		if prop == nil || prop.Value == nil {
			continue
		}
		if prop.Value.Type.Is(openapi3.TypeArray) {
			var items *openapi3.Schema
			if prop.Value.Items != nil {
				items = prop.Value.Items.Value
			}
			list := make([]any, 0, len(vals))
			for _, raw := range vals {
				list = append(list, coerceValue(strings.TrimSpace(raw), items))
			}
			out[k] = list
			continue
		}
		out[k] = coerceValue(strings.TrimSpace(vals[0]), prop.Value)
	}
	return out
}

func coerceValue(raw string, s *openapi3.Schema) any {
	if s == nil || s.Type == nil {
		return raw
	}
	switch {
	case s.Type.Is(openapi3.TypeNumber), s.Type.Is(openapi3.TypeInteger):
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case s.Type.Is(openapi3.TypeBoolean):
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}
