package validation

import (
	"context"
	"sync/atomic"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/sync/singleflight"
)

// Lazy compiles a validator on first use and memoises it. Concurrent first
// calls share one compilation; the first stored validator wins. A failed
// compilation is not cached. Lazy must not be copied after first use.
type Lazy struct {
	compiled atomic.Pointer[Validator]
	group    singleflight.Group
}

// Get returns the memoised validator, compiling the schema produced by build
// when none exists yet.
func (l *Lazy) Get(ctx context.Context, build func() (*openapi3.Schema, error)) (*Validator, error) {
	if v := l.compiled.Load(); v != nil {
		return v, nil
	}

	res, err, _ := l.group.Do("compile", func() (any, error) {
		s, err := build()
		if err != nil {
			return nil, err
		}
		return Compile(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	l.compiled.CompareAndSwap(nil, res.(*Validator))
	return l.compiled.Load(), nil
}

// Compiled reports whether a validator has been stored.
func (l *Lazy) Compiled() bool {
	return l.compiled.Load() != nil
}
