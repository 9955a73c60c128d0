package suspicion

import (
	"encoding/json"
	"strings"

	"github.com/shortontech/goprint/internal/signals"
)

// View is a read-only accessor over a signal set. Every getter reports
// false when the signal is absent, is an error marker, or has another shape.
type View struct {
	set *signals.Set
}

func NewView(set *signals.Set) View { return View{set: set} }

// Len is the number of entries, error markers included.
func (v View) Len() int { return v.set.Len() }

func (v View) ErrorCount() int { return v.set.ErrorCount() }

// Missing reports whether name is absent or an error marker.
func (v View) Missing(name signals.Name) bool {
	val, ok := v.set.Get(name)
	return !ok || val.IsError()
}

func (v View) Data(name signals.Name) (any, bool) {
	val, ok := v.set.Get(name)
	if !ok || val.IsError() {
		return nil, false
	}
	return val.Data(), true
}

func (v View) String(name signals.Name) (string, bool) {
	d, ok := v.Data(name)
	if !ok {
		return "", false
	}
	s, ok := d.(string)
	return s, ok
}

// UserAgent falls back to "" so that substring rules simply do not match.
func (v View) UserAgent() string {
	s, _ := v.String(signals.UserAgent)
	return s
}

func (v View) Object(name signals.Name) (map[string]any, bool) {
	d, ok := v.Data(name)
	if !ok {
		return nil, false
	}
	m, ok := d.(map[string]any)
	return m, ok
}

func (v View) Field(name signals.Name, field string) (any, bool) {
	m, ok := v.Object(name)
	if !ok {
		return nil, false
	}
	f, ok := m[field]
	return f, ok && f != nil
}

func (v View) FieldString(name signals.Name, field string) (string, bool) {
	f, ok := v.Field(name, field)
	if !ok {
		return "", false
	}
	s, ok := f.(string)
	return s, ok
}

func (v View) FieldNumber(name signals.Name, field string) (float64, bool) {
	f, ok := v.Field(name, field)
	if !ok {
		return 0, false
	}
	return number(f)
}

func (v View) FieldBool(name signals.Name, field string) (bool, bool) {
	f, ok := v.Field(name, field)
	if !ok {
		return false, false
	}
	b, ok := f.(bool)
	return b, ok
}

func (v View) FieldStrings(name signals.Name, field string) []string {
	f, ok := v.Field(name, field)
	if !ok {
		return nil
	}
	return stringList(f)
}

// Entries exposes the underlying entries for rules that look at the whole set.
func (v View) Entries() []signals.Entry { return v.set.Entries() }

func number(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringList(x any) []string {
	switch l := x.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func containsAny(haystack string, needles []string) bool {
	if haystack == "" {
		return false
	}
	h := strings.ToLower(haystack)
	for _, n := range needles {
		if n != "" && strings.Contains(h, strings.ToLower(n)) {
			return true
		}
	}
	return false
}
