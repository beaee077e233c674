package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// typingsFile is one JSON or YAML document in a typings directory:
//
//	namespace: API
//	definitions:
//	  UserRes:
//	    type: object
//	    properties:
//	      id: {type: number}
//	      address: {$ref: "#/definitions/Address"}
//
// References name a definition of the same namespace, or another
// namespace with a qualified name.
type typingsFile struct {
	Namespace   string         `yaml:"namespace"`
	Definitions map[string]any `yaml:"definitions"`
}

type typing struct {
	namespace string
	source    string
	raw       []byte
}

// DirReflector serves schemas loaded from *.json, *.yaml and *.yml typings
// files. Init walks the file tree once; every ReflectType decodes a fresh
// copy of the requested symbol and the definitions it reaches.
type DirReflector struct {
	fsys fs.FS
	name string

	mu      sync.RWMutex
	typings map[string]typing
	ready   atomic.Bool
}

var _ TypeReflector = (*DirReflector)(nil)

// NewDirReflector reads typings below root.
func NewDirReflector(root string) *DirReflector {
	return &DirReflector{fsys: os.DirFS(root), name: root}
}

// NewFSReflector reads typings from fsys, e.g. an embed.FS.
func NewFSReflector(fsys fs.FS) *DirReflector {
	return &DirReflector{fsys: fsys, name: "fs"}
}

// Init loads every typings file. Duplicate symbols and bare names that
// collide across namespaces are errors.
func (r *DirReflector) Init(ctx context.Context) error {
	if r.ready.Load() {
		return nil
	}

	loaded := make(map[string]typing)
	bare := make(map[string]string)

	err := fs.WalkDir(r.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(path.Ext(p)) {
		case ".json", ".yaml", ".yml":
		default:
			return nil
		}

		data, err := fs.ReadFile(r.fsys, p)
		if err != nil {
			return err
		}
		var file typingsFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}

		for name, def := range file.Definitions {
			symbol := name
			if file.Namespace != "" {
				symbol = file.Namespace + "." + name
			}
			if prev, exists := loaded[symbol]; exists {
				return fmt.Errorf("%s: symbol %s already defined in %s", p, symbol, prev.source)
			}
			if prev, exists := bare[ComponentName(symbol)]; exists {
				return fmt.Errorf("%s: %s collides with %s on component name %s", p, symbol, prev, ComponentName(symbol))
			}

			raw, err := json.Marshal(normalizeYAML(def))
			if err != nil {
				return fmt.Errorf("%s: encode %s: %w", p, symbol, err)
			}
			loaded[symbol] = typing{namespace: file.Namespace, source: p, raw: raw}
			bare[ComponentName(symbol)] = symbol
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load typings from %s: %w", r.name, err)
	}

	r.mu.Lock()
	r.typings = loaded
	r.mu.Unlock()
	r.ready.Store(true)
	return nil
}

// Ready reports whether Init has completed.
func (r *DirReflector) Ready() bool {
	return r.ready.Load()
}

// Symbols returns every loaded symbol in sorted order.
func (r *DirReflector) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.typings))
	for s := range r.typings {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// ReflectType decodes symbol and the transitive closure of the definitions
// it references. References are rewritten to qualified symbols.
func (r *DirReflector) ReflectType(symbol string) (*Reflection, error) {
	if !r.ready.Load() {
		return nil, ErrNotReady
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	root, queue, err := r.decode(symbol)
	if err != nil {
		return nil, err
	}

	defs := openapi3.Schemas{}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, done := defs[next]; done {
			continue
		}
		def, deps, err := r.decode(next)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
		defs[next] = def
		queue = append(queue, deps...)
	}

	return &Reflection{Schema: root, Definitions: defs}, nil
}

func (r *DirReflector) decode(symbol string) (*openapi3.SchemaRef, []string, error) {
	entry, ok := r.typings[symbol]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownType, symbol)
	}

	var ref openapi3.SchemaRef
	if err := json.Unmarshal(entry.raw, &ref); err != nil {
		return nil, nil, fmt.Errorf("decode %s from %s: %w", symbol, entry.source, err)
	}

	var deps []string
	err := WalkRefs(&ref, func(sr *openapi3.SchemaRef) error {
		name, ok := strings.CutPrefix(sr.Ref, DefinitionsPrefix)
		if !ok {
			name, ok = strings.CutPrefix(sr.Ref, ComponentsPrefix)
		}
		if !ok {
			return fmt.Errorf("%s: unsupported reference %q", symbol, sr.Ref)
		}
		target := r.lookup(name, entry.namespace)
		if target == "" {
			return fmt.Errorf("%w: %s referenced from %s", ErrUnknownType, name, symbol)
		}
		sr.Ref = DefinitionsPrefix + target
		deps = append(deps, target)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &ref, deps, nil
}

// lookup prefers the referencing namespace, then an exact symbol.
func (r *DirReflector) lookup(name, namespace string) string {
	if namespace != "" {
		if _, ok := r.typings[namespace+"."+name]; ok {
			return namespace + "." + name
		}
	}
	if _, ok := r.typings[name]; ok {
		return name
	}
	return ""
}

// normalizeYAML turns map[any]any nodes into map[string]any for JSON.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = normalizeYAML(inner)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalizeYAML(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = normalizeYAML(inner)
		}
		return out
	default:
		return v
	}
}
