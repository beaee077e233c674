// Package validation holds parameter constraints, compiled JSON-schema
// validators and the struct tag parser that feeds type reflection.
package validation

import (
	"reflect"
	"strconv"
	"strings"
)

const trueValue = "true"

// TagInfo is the documentation and validation metadata of one struct field.
type TagInfo struct {
	Name        string            // Go field name
	JSONName    string            // property name; "-" when the field is skipped
	Required    bool              // property belongs in the schema's required list
	Constraints map[string]string // parsed validate tag, flags map to "true"
	Description string            // doc or description tag
	Example     string            // example tag
	Default     string            // default tag
	Pattern     string            // pattern tag, for regexes the validate tag cannot hold
	OmitEmpty   bool
}

// ParseField parses the json, validate, doc, description, example, default
// and pattern tags of a single field.
func ParseField(field reflect.StructField) TagInfo {
	info := TagInfo{
		Name:        field.Name,
		JSONName:    field.Name,
		Constraints: make(map[string]string),
	}

	if json, ok := field.Tag.Lookup("json"); ok {
		parts := strings.Split(json, ",")
		if parts[0] != "" {
			info.JSONName = parts[0]
		}
		for _, part := range parts[1:] {
			if strings.TrimSpace(part) == "omitempty" {
				info.OmitEmpty = true
			}
		}
	}

	if validate := field.Tag.Get("validate"); validate != "" {
		parseValidateTag(validate, info.Constraints)
	}

	info.Description = field.Tag.Get("doc")
	if info.Description == "" {
		info.Description = field.Tag.Get("description")
	}
	info.Example = field.Tag.Get("example")
	info.Default = field.Tag.Get("default")
	info.Pattern = field.Tag.Get("pattern")
	info.Required = isFieldRequired(info, field.Type)

	return info
}

func parseValidateTag(validate string, constraints map[string]string) {
	for _, part := range strings.Split(validate, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			constraints[part] = trueValue
			continue
		}
		constraints[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
}

// A field is required when validate says so, or when it is a non-pointer
// without omitempty. Pointers and omitempty mark optional properties.
func isFieldRequired(info TagInfo, t reflect.Type) bool {
	if info.JSONName == "-" {
		return false
	}
	if _, ok := info.Constraints["required"]; ok {
		return true
	}
	if _, ok := info.Constraints["omitempty"]; ok {
		return false
	}
	return !info.OmitEmpty && t.Kind() != reflect.Pointer
}

// Skipped reports whether the field is excluded from JSON.
func (t *TagInfo) Skipped() bool {
	return t.JSONName == "-"
}

// Min returns the lower bound from min or gte.
func (t *TagInfo) Min() (float64, bool) {
	return t.number("min", "gte")
}

// Max returns the upper bound from max or lte.
func (t *TagInfo) Max() (float64, bool) {
	return t.number("max", "lte")
}

// Len returns the exact length constraint.
func (t *TagInfo) Len() (float64, bool) {
	return t.number("len")
}

func (t *TagInfo) number(keys ...string) (float64, bool) {
	for _, key := range keys {
		if raw, ok := t.Constraints[key]; ok {
			if val, err := strconv.ParseFloat(raw, 64); err == nil {
				return val, true
			}
		}
	}
	return 0, false
}

// GetPattern returns the pattern tag, falling back to a regexp constraint.
func (t *TagInfo) GetPattern() (string, bool) {
	if t.Pattern != "" {
		return t.Pattern, true
	}
	pattern, ok := t.Constraints["regexp"]
	return pattern, ok
}

// GetEnum returns the oneof values.
func (t *TagInfo) GetEnum() ([]string, bool) {
	values := strings.Fields(t.Constraints["oneof"])
	return values, len(values) > 0
}

var stringFormats = [...]struct{ flag, format string }{
	{"email", "email"},
	{"url", "uri"},
	{"uri", "uri"},
	{"uuid", "uuid"},
	{"datetime", "date-time"},
	{"ipv4", "ipv4"},
	{"ipv6", "ipv6"},
}

// Format maps well-known validate flags to an OpenAPI string format.
func (t *TagInfo) Format() string {
	for _, f := range stringFormats {
		if _, ok := t.Constraints[f.flag]; ok {
			return f.format
		}
	}
	return ""
}
