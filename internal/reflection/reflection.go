// Package reflection holds the runtime reflection helpers used to name
// handlers and Go types.
package reflection

import (
	"reflect"
	"runtime"
	"strings"
	"unicode"
)

var funcForPCFn = runtime.FuncForPC

// ExtractHandlerName returns the bare function name of a handler. Method
// values lose the "-fm" suffix the runtime appends, closures keep their
// "funcN" name.
func ExtractHandlerName(handler any) string {
	if handler == nil {
		return ""
	}

	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}

	fn := funcForPCFn(v.Pointer())
	if fn == nil {
		return ""
	}

	return extractHandlerNameFromName(fn.Name())
}

func extractHandlerNameFromName(name string) string {
	name = strings.TrimSuffix(name, "-fm")
	if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
		return name[lastDot+1:]
	}
	return name
}

// GetTypeName returns the package-qualified name of t, dereferencing
// pointers.
func GetTypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// GetTypeNameShort returns the type name without package, usable as a
// schema component name. Generic instantiations are flattened:
// Page[example.com/user.User] becomes PageUser.
func GetTypeNameShort(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	name := t.Name()
	base, args, generic := strings.Cut(name, "[")
	if !generic {
		return name
	}

	var b strings.Builder
	b.WriteString(base)
	for _, arg := range strings.Split(strings.TrimSuffix(args, "]"), ",") {
		if i := strings.LastIndexAny(arg, "./"); i >= 0 {
			arg = arg[i+1:]
		}
		for _, r := range arg {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
