package reflection

import (
	"reflect"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

type sampleType struct{}

type page[T any] struct {
	Items []T
}

func sampleFunction() {
	// no-op
}

func (sampleType) getUser() {
	// no-op
}

func TestExtractHandlerName(t *testing.T) {
	assert.Equal(t, "sampleFunction", ExtractHandlerName(sampleFunction))
	assert.Equal(t, "getUser", ExtractHandlerName(sampleType{}.getUser))
	assert.Equal(t, "", ExtractHandlerName(nil))
	assert.Equal(t, "", ExtractHandlerName("not a func"))

	var nilFunc func()
	assert.Equal(t, "", ExtractHandlerName(nilFunc))
}

func TestExtractHandlerNameNilRuntimeFunc(t *testing.T) {
	original := funcForPCFn
	funcForPCFn = func(uintptr) *runtime.Func { return nil }
	t.Cleanup(func() { funcForPCFn = original })

	assert.Equal(t, "", ExtractHandlerName(sampleFunction))
}

func TestExtractHandlerNameFromName(t *testing.T) {
	tests := map[string]string{
		"github.com/acme/user.(*Module).getUser-fm": "getUser",
		"github.com/acme/user.listUsers":            "listUsers",
		"github.com/acme/user.init.func1":           "func1",
		"plain":                                     "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, extractHandlerNameFromName(in), in)
	}
}

func TestGetTypeName(t *testing.T) {
	typ := reflect.TypeOf(&sampleType{})
	assert.Equal(t, typ.Elem().PkgPath()+".sampleType", GetTypeName(typ))
	assert.Equal(t, "int", GetTypeName(reflect.TypeOf(0)))
	assert.Equal(t, "", GetTypeName(nil))
}

func TestGetTypeNameShort(t *testing.T) {
	assert.Equal(t, "sampleType", GetTypeNameShort(reflect.TypeOf(&sampleType{})))
	assert.Equal(t, "pagesampleType", GetTypeNameShort(reflect.TypeOf(page[sampleType]{})))
	assert.Equal(t, "pageint", GetTypeNameShort(reflect.TypeOf(page[int]{})))
	assert.Equal(t, "", GetTypeNameShort(nil))
}
