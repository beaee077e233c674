// Package openapi assembles the OpenAPI 3 document of a server.Registry and
// serves it with a Swagger UI page.
package openapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaborage/apidoc/config"
	"github.com/gaborage/apidoc/internal/tracking"
	"github.com/gaborage/apidoc/logger"
	"github.com/gaborage/apidoc/schema"
	"github.com/gaborage/apidoc/server"
)

const (
	// Version is the OpenAPI version written into every document.
	Version = "3.0.0"
	// ErrorResponseComponent names the error envelope schema referenced by
	// the 400 response of every action with parameters.
	ErrorResponseComponent = "ErrorResponse"

	defaultTitle   = "API"
	defaultVersion = "1.0.0"
)

// Option configures a Builder.
type Option func(*Builder)

// WithTitle sets info.title.
func WithTitle(title string) Option {
	return func(b *Builder) { b.title = title }
}

// WithVersion sets info.version.
func WithVersion(version string) Option {
	return func(b *Builder) { b.version = version }
}

// WithDescription sets info.description.
func WithDescription(description string) Option {
	return func(b *Builder) { b.description = description }
}

// WithSecurityScheme adds a scheme to components.securitySchemes and a
// requirement for it to every operation.
func WithSecurityScheme(name string, scheme config.SecuritySchemeConfig) Option {
	return func(b *Builder) { b.security[name] = scheme }
}

// WithLogger sets the logger used for assembly warnings.
func WithLogger(log logger.Logger) Option {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// WithBasePath documents the path every action is mounted below as the
// document's single server URL.
func WithBasePath(base string) Option {
	return func(b *Builder) { b.basePath = server.JoinPath(base, "") }
}

// WithComponents resolves the given type names into components.schemas even
// when no action references them.
func WithComponents(symbols ...string) Option {
	return func(b *Builder) { b.extra = append(b.extra, symbols...) }
}

// Builder assembles documents from the documented controllers of a
// registry. Build is a pure read of the registry.
type Builder struct {
	registry    *server.Registry
	log         logger.Logger
	title       string
	version     string
	description string
	security    map[string]config.SecuritySchemeConfig
	extra       []string
	basePath    string

	mu        sync.Mutex
	cached    *openapi3.T
	cachedVer uint64
}

// New creates a builder over reg.
func New(reg *server.Registry, opts ...Option) *Builder {
	b := &Builder{
		registry: reg,
		log:      logger.NewNop(),
		title:    defaultTitle,
		version:  defaultVersion,
		security: make(map[string]config.SecuritySchemeConfig),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromConfig creates a builder with info and security schemes taken from
// cfg. An empty title falls back to the application name.
func NewFromConfig(reg *server.Registry, cfg *config.Config, opts ...Option) *Builder {
	base := make([]Option, 0, len(cfg.OpenAPI.Security)+3)
	title := cfg.OpenAPI.Title
	if title == "" {
		title = cfg.App.Name
	}
	if title != "" {
		base = append(base, WithTitle(title))
	}
	if cfg.OpenAPI.Version != "" {
		base = append(base, WithVersion(cfg.OpenAPI.Version))
	}
	base = append(base, WithDescription(cfg.OpenAPI.Description), WithBasePath(cfg.Server.Path.Base))
	for name, scheme := range cfg.OpenAPI.Security {
		base = append(base, WithSecurityScheme(name, scheme))
	}
	return New(reg, append(base, opts...)...)
}

// Document returns the last built document, rebuilding it when the registry
// changed since.
func (b *Builder) Document(ctx context.Context) (*openapi3.T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ver := b.registry.Version()
	if b.cached != nil && b.cachedVer == ver {
		return b.cached, nil
	}
	doc, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	b.cached, b.cachedVer = doc, ver
	return doc, nil
}

// Build assembles a fresh document. Configuration problems of every action
// are reported together.
func (b *Builder) Build(ctx context.Context) (*openapi3.T, error) {
	start := time.Now()
	doc, err := b.build(ctx)
	tracking.RecordDocumentBuild(ctx, time.Since(start), err)
	return doc, err
}

// ErrComponentConflict reports two different schemas under one component
// name, typically unregistered structs sharing a Go type name.
var ErrComponentConflict = errors.New("component name used by different schemas")

func (b *Builder) build(ctx context.Context) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: Version,
		Info: &openapi3.Info{
			Title:       b.title,
			Description: b.description,
			Version:     b.version,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas:         openapi3.Schemas{ErrorResponseComponent: openapi3.NewSchemaRef("", errorResponseSchema())},
			SecuritySchemes: b.securitySchemes(),
		},
	}
	if b.basePath != "" {
		doc.Servers = openapi3.Servers{{URL: b.basePath}}
	}
	security := b.securityRequirements()

	var errs []error
	for _, ctrl := range b.registry.Documented() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.Tags = append(doc.Tags, &openapi3.Tag{Name: ctrl.Name, Description: ctrl.Options.Description})
		for _, action := range ctrl.Actions() {
			if err := b.addAction(doc, ctrl, action, security); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, symbol := range b.extra {
		ts, err := b.registry.Resolver().Resolve(symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", symbol, err))
			continue
		}
		if err := mergeComponents(doc, ts.Components); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", symbol, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := checkRefs(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// requestBody collects the body contributions of one action.
type requestBody struct {
	properties *openapi3.Schema
	all        *openapi3.SchemaRef
	allName    string
	required   bool
}

func (b *Builder) addAction(doc *openapi3.T, ctrl *server.ControllerInfo, action *server.ActionInfo, security *openapi3.SecurityRequirements) error {
	routePath := ctrl.RoutePath(action)
	fullPath := server.OpenAPIPath(routePath)
	segments := server.PathParams(routePath)
	fail := func(param, msg string, err error) error {
		return &server.ConfigError{Controller: ctrl.Name, Action: action.Name, Param: param, Message: msg, Err: err}
	}

	var (
		params   openapi3.Parameters
		body     requestBody
		declared = make(map[string]bool, len(segments))
	)
	for pos, name := range action.ParameterNames {
		rule := action.ParameterRules[pos]
		if rule == nil {
			continue
		}
		wire := rule.WireName(name)

		value, components, err := rule.ValueSchema()
		if err != nil {
			return fail(name, "cannot resolve type", err)
		}
		if err := mergeComponents(doc, components); err != nil {
			return fail(name, "conflicting component schema", err)
		}

		switch rule.Source {
		case server.SourcePath:
			if !slices.Contains(segments, wire) {
				return fail(name, fmt.Sprintf("path %q has no :%s segment", routePath, wire), nil)
			}
			declared[wire] = true
			params = append(params, parameter(openapi3.ParameterInPath, wire, true, rule, value))
		case server.SourceHeader:
			params = append(params, parameter(openapi3.ParameterInHeader, wire, rule.Constraints.Required, rule, value))
		case server.SourceQuery:
			params = append(params, parameter(openapi3.ParameterInQuery, wire, rule.Constraints.Required, rule, value))
		case server.SourceQueryAll:
			params = append(params, queryParameters(value)...)
		case server.SourceBody:
			if body.properties == nil {
				body.properties = openapi3.NewObjectSchema()
			}
			if value.Ref == "" && value.Value != nil && rule.Constraints.Description != "" {
				value.Value.Description = rule.Constraints.Description
			}
			body.properties.WithPropertyRef(wire, value)
			if rule.Constraints.Required {
				body.properties.Required = append(body.properties.Required, wire)
				body.required = true
			}
		case server.SourceBodyAll:
			body.all = value
			body.allName = name
		}
	}

	for _, seg := range segments {
		if !declared[seg] {
			params = append(params, &openapi3.ParameterRef{Value: &openapi3.Parameter{
				Name:     seg,
				In:       openapi3.ParameterInPath,
				Required: true,
				Schema:   openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			}})
		}
	}

	responses, err := b.responses(doc, action)
	switch {
	case errors.Is(err, ErrComponentConflict):
		return fail("", "conflicting component schema", err)
	case err != nil:
		return fail("", fmt.Sprintf("cannot resolve response type %q", action.ResponseType()), err)
	}

	reqBody := b.requestBody(ctrl, action, body)
	for _, method := range action.Methods() {
		op := &openapi3.Operation{
			OperationID: fmt.Sprintf("%s:%s::%s", fullPath, strings.ToLower(method), action.Name),
			Tags:        []string{ctrl.Name},
			Summary:     summary(action),
			Description: action.Options.Description,
			Parameters:  params,
			RequestBody: reqBody,
			Responses:   responses,
			Security:    security,
		}
		doc.AddOperation(fullPath, method, op)
	}
	return nil
}

func (b *Builder) requestBody(ctrl *server.ControllerInfo, action *server.ActionInfo, body requestBody) *openapi3.RequestBodyRef {
	switch {
	case body.all != nil:
		if body.properties != nil {
			b.log.Warn().
				Str("controller", ctrl.Name).
				Str("action", action.Name).
				Str("param", body.allName).
				Msg("Whole-body parameter replaces single body properties in the document")
		}
		rule := wholeBodyRule(action)
		required := rule != nil && rule.Type != schema.TypeAny && rule.Constraints.Default == nil
		return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithJSONSchemaRef(body.all).WithRequired(required)}
	case body.properties != nil:
		return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithJSONSchema(body.properties).
			WithRequired(body.required)}
	default:
		return nil
	}
}

func wholeBodyRule(action *server.ActionInfo) *server.ParameterRule {
	var last *server.ParameterRule
	for _, rule := range action.Rules() {
		if rule.Source == server.SourceBodyAll {
			last = rule
		}
	}
	return last
}

func (b *Builder) responses(doc *openapi3.T, action *server.ActionInfo) (*openapi3.Responses, error) {
	ts, err := b.registry.Resolver().Resolve(action.ResponseType())
	if err != nil {
		return nil, err
	}
	if err := mergeComponents(doc, ts.Components); err != nil {
		return nil, err
	}

	responses := openapi3.NewResponses(
		openapi3.WithName("default", openapi3.NewResponse().
			WithDescription("default").
			WithJSONSchemaRef(ts.Schema)),
	)
	if len(action.Rules()) > 0 {
		envelope := doc.Components.Schemas[ErrorResponseComponent]
		responses.Set("400", &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription("Invalid request parameters").
			WithJSONSchemaRef(openapi3.NewSchemaRef(schema.ComponentRef(ErrorResponseComponent), envelope.Value))})
	}
	return responses, nil
}

// mergeComponents adds components to the document. A name already bound to
// a different schema yields ErrComponentConflict.
func mergeComponents(doc *openapi3.T, components openapi3.Schemas) error {
	var conflicts []string
	for name, ref := range components {
		existing, ok := doc.Components.Schemas[name]
		if ok && !sameSchema(existing, ref) {
			conflicts = append(conflicts, name)
			continue
		}
		doc.Components.Schemas[name] = ref
	}
	if len(conflicts) == 0 {
		return nil
	}
	slices.Sort(conflicts)
	return fmt.Errorf("%w: %s", ErrComponentConflict, strings.Join(conflicts, ", "))
}

func sameSchema(a, b *openapi3.SchemaRef) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	left, errA := a.MarshalJSON()
	right, errB := b.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(left, right)
}

func parameter(in, name string, required bool, rule *server.ParameterRule, value *openapi3.SchemaRef) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        name,
		In:          in,
		Required:    required,
		Description: rule.Constraints.Description,
		Schema:      value,
	}}
}

// queryParameters expands an object type into one query parameter per
// property, sorted by name. Types without properties contribute nothing.
func queryParameters(value *openapi3.SchemaRef) openapi3.Parameters {
	if value == nil || value.Value == nil || len(value.Value.Properties) == 0 {
		return nil
	}
	obj := value.Value
	names := slices.Sorted(maps.Keys(obj.Properties))
	out := make(openapi3.Parameters, 0, len(names))
	for _, name := range names {
		prop := obj.Properties[name]
		p := &openapi3.Parameter{
			Name:     name,
			In:       openapi3.ParameterInQuery,
			Required: slices.Contains(obj.Required, name),
			Schema:   prop,
		}
		if prop.Ref == "" && prop.Value != nil {
			p.Description = prop.Value.Description
		}
		out = append(out, &openapi3.ParameterRef{Value: p})
	}
	return out
}

func summary(action *server.ActionInfo) string {
	switch {
	case action.Options.Summary != "":
		return action.Options.Summary
	case action.Options.Description != "":
		return action.Options.Description
	default:
		return action.Name
	}
}

func (b *Builder) securitySchemes() openapi3.SecuritySchemes {
	if len(b.security) == 0 {
		return nil
	}
	out := make(openapi3.SecuritySchemes, len(b.security))
	for name, sc := range b.security {
		in := sc.In
		if in == "" && sc.Type == "apiKey" {
			in = openapi3.ParameterInHeader
		}
		out[name] = &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
			Type:         sc.Type,
			Description:  sc.Description,
			Name:         sc.Name,
			In:           in,
			Scheme:       sc.Scheme,
			BearerFormat: sc.BearerFormat,
		}}
	}
	return out
}

func (b *Builder) securityRequirements() *openapi3.SecurityRequirements {
	if len(b.security) == 0 {
		return nil
	}
	reqs := openapi3.NewSecurityRequirements()
	for _, name := range slices.Sorted(maps.Keys(b.security)) {
		reqs.With(openapi3.NewSecurityRequirement().Authenticate(name))
	}
	return reqs
}

// errorResponseSchema mirrors server.APIResponse.
func errorResponseSchema() *openapi3.Schema {
	errObj := openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("details", openapi3.NewObjectSchema()).
		WithRequired([]string{"code", "message"})
	meta := openapi3.NewObjectSchema().
		WithProperty("timestamp", openapi3.NewDateTimeSchema()).
		WithProperty("traceId", openapi3.NewStringSchema())
	return openapi3.NewObjectSchema().
		WithProperty("error", errObj).
		WithProperty("meta", meta).
		WithRequired([]string{"error"})
}
