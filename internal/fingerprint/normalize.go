package fingerprint

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Keys whose values are transient by name. Matched case-insensitively.
var transientKeys = func() map[string]struct{} {
	names := []string{
		"timestamp", "time", "date", "now",
		"nonce", "random", "rand", "salt",
		"uuid", "guid", "id",
		"requestId", "sessionId", "session", "visitId",
		"traceId", "spanId", "correlationId",
		"token", "csrf", "expires", "expiry", "ts",
	}
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = struct{}{}
	}
	return m
}()

// Millisecond-epoch magnitude.
const (
	epochMillisLow  = 1e12
	epochMillisHigh = 1e13
)

// NormalizeCustomData strips transient fields from caller data. The input is
// never modified. With allowUnstable the result is a shallow copy of data.
// An empty result means the custom block should be treated as absent.
func NormalizeCustomData(data map[string]any, allowUnstable bool) map[string]any {
	out, _ := normalizeCustomData(data, allowUnstable)
	return out
}

func normalizeCustomData(data map[string]any, allowUnstable bool) (map[string]any, []string) {
	out := make(map[string]any, len(data))
	var dropped []string
	for k, v := range data {
		if !allowUnstable && isTransient(k, v) {
			dropped = append(dropped, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(dropped)
	return out, dropped
}

func isTransient(key string, value any) bool {
	if _, ok := transientKeys[strings.ToLower(key)]; ok {
		return true
	}
	if f, ok := asFloat(value); ok && f >= epochMillisLow && f <= epochMillisHigh {
		return true
	}
	if s, ok := value.(string); ok && looksLikeUUID(s) {
		return true
	}
	return false
}

// looksLikeUUID accepts only the canonical 8-4-4-4-12 form.
func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// dropMalformed removes values that have no JSON representation (channels,
// funcs, complex numbers), at any depth of the top-level value.
func dropMalformed(data map[string]any) (map[string]any, []string) {
	if len(data) == 0 {
		return data, nil
	}
	var dropped []string
	out := make(map[string]any, len(data))
	for k, v := range data {
		if !representable(reflect.ValueOf(v), map[uintptr]bool{}) {
			dropped = append(dropped, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(dropped)
	return out, dropped
}

func representable(v reflect.Value, seen map[uintptr]bool) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return false
	case reflect.Interface:
		return representable(v.Elem(), seen)
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return true
		}
		p := v.Pointer()
		if seen[p] {
			// cycles are rendered as a marker, not rejected
			return true
		}
		seen[p] = true
		defer delete(seen, p)
	}
	switch v.Kind() {
	case reflect.Pointer:
		return representable(v.Elem(), seen)
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !representable(iter.Value(), seen) {
				return false
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !representable(v.Index(i), seen) {
				return false
			}
		}
	}
	return true
}
