package workflow

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// Truthy reports whether a decoded value counts as provided.
// Empty and whitespace-only strings, zero numbers of any kind, false, nil and
// empty collections are not. Pointers and interfaces are judged by what they
// point to.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case bool:
		return val
	case json.Number:
		s := strings.TrimSpace(val.String())
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f != 0
		}
		return s != ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return strings.TrimSpace(rv.String()) != ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return Truthy(rv.Elem().Interface())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return !rv.IsZero()
	default:
		return true
	}
}
