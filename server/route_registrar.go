package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RouteRegistrar is the subset of echo routing the registry mounts actions
// on. Implementations keep track of their prefix so FullPath reports the
// path a request actually hits.
type RouteRegistrar interface {
	Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route
	Group(prefix string, middleware ...echo.MiddlewareFunc) RouteRegistrar
	Use(middleware ...echo.MiddlewareFunc)
	FullPath(path string) string
}

// MethodAny registers an action under every method in AnyMethods.
const MethodAny = "ANY"

// AnyMethods are the concrete methods an ANY action is mounted and
// documented under.
var AnyMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
}

type routeGroup struct {
	group  *echo.Group
	prefix string
}

// NewRouteGroup wraps an echo group whose routes live under prefix.
func NewRouteGroup(group *echo.Group, prefix string) RouteRegistrar {
	return &routeGroup{group: group, prefix: normalizePrefix(prefix)}
}

func (rg *routeGroup) Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route {
	return rg.group.Add(method, rg.relativePath(path), handler, middleware...)
}

func (rg *routeGroup) Group(prefix string, middleware ...echo.MiddlewareFunc) RouteRegistrar {
	normalized := normalizePrefix(prefix)
	return &routeGroup{
		group:  rg.group.Group(normalized, middleware...),
		prefix: JoinPath(rg.prefix, normalized),
	}
}

func (rg *routeGroup) Use(middleware ...echo.MiddlewareFunc) {
	rg.group.Use(middleware...)
}

func (rg *routeGroup) FullPath(path string) string {
	full := JoinPath(rg.prefix, rg.relativePath(path))
	if full == "" {
		return "/"
	}
	return full
}

func (rg *routeGroup) relativePath(path string) string {
	normalized := ensureLeadingSlash(path)
	if normalized == "/" {
		return ""
	}
	return normalized
}

// JoinPath joins a controller prefix and an action path with exactly one
// slash between them. The result has no trailing slash unless it is "/".
func JoinPath(prefix, path string) string {
	prefix = normalizePrefix(prefix)
	if path == "" || path == "/" {
		return prefix
	}
	return prefix + ensureLeadingSlash(path)
}

// PathParams returns the names of the ":name" segments of an echo path in
// order of appearance.
func PathParams(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if name, ok := strings.CutPrefix(seg, ":"); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// OpenAPIPath rewrites every ":name" segment to "{name}".
func OpenAPIPath(path string) string {
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		if name, ok := strings.CutPrefix(seg, ":"); ok && name != "" {
			segs[i] = "{" + name + "}"
		}
	}
	out := strings.Join(segs, "/")
	if out == "" {
		return "/"
	}
	return out
}

func ensureLeadingSlash(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func normalizePrefix(prefix string) string {
	if prefix == "" || prefix == "/" {
		return ""
	}
	return strings.TrimRight(ensureLeadingSlash(prefix), "/")
}
