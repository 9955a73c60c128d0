package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/shortontech/goprint/internal/signals"
)

// CircularMarker replaces any value that refers back to one of its parents.
const CircularMarker = "[Circular]"

var (
	valueType     = reflect.TypeOf(signals.Value{})
	numberType    = reflect.TypeOf(json.Number(""))
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// Canonical renders v as deterministic JSON: map keys sorted, slices in
// order, cycles replaced by CircularMarker, unrepresentable values omitted
// from objects and rendered as null elsewhere. Structs render as objects
// keyed by their json field names.
func Canonical(v any) []byte {
	e := &encoder{seen: make(map[uintptr]bool)}
	e.encode(reflect.ValueOf(v))
	return e.buf.Bytes()
}

// canonicalSet renders the signal set in its own order followed by custom.
func canonicalSet(set *signals.Set, custom map[string]any, include func(signals.Name) bool) []byte {
	e := &encoder{seen: make(map[uintptr]bool)}
	e.buf.WriteByte('{')
	first := true
	for _, entry := range set.Entries() {
		if include != nil && !include(entry.Name) {
			continue
		}
		if !first {
			e.buf.WriteByte(',')
		}
		first = false
		e.writeString(string(entry.Name))
		e.buf.WriteByte(':')
		e.encodeValue(entry.Value)
	}
	if len(custom) > 0 {
		if !first {
			e.buf.WriteByte(',')
		}
		e.writeString("custom")
		e.buf.WriteByte(':')
		e.encode(reflect.ValueOf(custom))
	}
	e.buf.WriteByte('}')
	return e.buf.Bytes()
}

type encoder struct {
	buf  bytes.Buffer
	seen map[uintptr]bool
}

func (e *encoder) encodeValue(v signals.Value) {
	if v.IsError() {
		e.buf.WriteString(`{"error":`)
		e.writeString(string(v.Reason()))
		e.buf.WriteByte('}')
		return
	}
	e.encode(reflect.ValueOf(v.Data()))
}

func (e *encoder) encode(v reflect.Value) {
	if !v.IsValid() {
		e.buf.WriteString("null")
		return
	}
	switch v.Type() {
	case valueType:
		e.encodeValue(v.Interface().(signals.Value))
		return
	case numberType:
		e.writeNumber(json.Number(v.String()))
		return
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			e.buf.WriteString("null")
			return
		}
		if v.Kind() != reflect.Slice || v.Len() > 0 {
			p := v.Pointer()
			if e.seen[p] {
				e.writeString(CircularMarker)
				return
			}
			e.seen[p] = true
			defer delete(e.seen, p)
		}
	}

	if v.Kind() != reflect.Interface && v.Type().Implements(marshalerType) {
		e.encodeMarshaler(v)
		return
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		e.encode(v.Elem())
	case reflect.Map:
		e.encodeMap(v)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			e.encodeMarshaler(v)
			return
		}
		e.encodeList(v)
	case reflect.Array:
		e.encodeList(v)
	case reflect.String:
		e.writeString(v.String())
	case reflect.Bool:
		e.buf.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		e.writeFloat(v.Float())
	case reflect.Struct:
		e.encodeStruct(v)
	default:
		e.buf.WriteString("null")
	}
}

func (e *encoder) encodeMap(v reflect.Value) {
	type kv struct {
		key string
		val reflect.Value
	}
	pairs := make([]kv, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		val := iter.Value()
		if omitted(val) {
			continue
		}
		pairs = append(pairs, kv{key: mapKey(iter.Key()), val: val})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	e.buf.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.writeString(p.key)
		e.buf.WriteByte(':')
		e.encode(p.val)
	}
	e.buf.WriteByte('}')
}

func (e *encoder) encodeList(v reflect.Value) {
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.encode(v.Index(i))
	}
	e.buf.WriteByte(']')
}

type field struct {
	key string
	val reflect.Value
}

// encodeStruct renders exported fields under their json names, sorted like
// map keys. Walking the fields here instead of in encoding/json keeps cycle
// detection working through struct pointers.
func (e *encoder) encodeStruct(v reflect.Value) {
	fields := structFields(v, nil, map[string]bool{})
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })

	e.buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.writeString(f.key)
		e.buf.WriteByte(':')
		e.encode(f.val)
	}
	e.buf.WriteByte('}')
}

// structFields follows the encoding/json field rules: json tag names, "-"
// and omitempty, with untagged embedded structs flattened into the parent.
// Outer fields shadow promoted ones.
func structFields(v reflect.Value, out []field, taken map[string]bool) []field {
	t := v.Type()
	var embedded []reflect.Value
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := v.Field(i)

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if fv.Kind() == reflect.Pointer {
					if fv.IsNil() {
						continue
					}
					fv = fv.Elem()
				}
				embedded = append(embedded, fv)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if taken[name] || omitted(fv) {
			continue
		}
		if strings.Contains(","+opts+",", ",omitempty,") && isEmpty(fv) {
			continue
		}
		taken[name] = true
		out = append(out, field{key: name, val: fv})
	}
	for _, ev := range embedded {
		out = structFields(ev, out, taken)
	}
	return out
}

// isEmpty matches the omitempty notion of empty.
func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return v.IsZero()
	}
	return false
}

// encodeMarshaler defers to encoding/json and re-encodes the output so that
// object keys come out sorted.
func (e *encoder) encodeMarshaler(v reflect.Value) {
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		e.buf.WriteString("null")
		return
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		e.buf.WriteString("null")
		return
	}
	e.encode(reflect.ValueOf(generic))
}

func (e *encoder) writeFloat(f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		e.buf.WriteString("null")
		return
	}
	b, _ := json.Marshal(f)
	e.buf.Write(b)
}

// writeNumber renders decoded numbers the same way as native floats so that
// 1920 and 1920.0 hash alike.
func (e *encoder) writeNumber(n json.Number) {
	f, err := n.Float64()
	if err != nil {
		e.writeString(n.String())
		return
	}
	e.writeFloat(f)
}

func (e *encoder) writeString(s string) {
	b, _ := json.Marshal(s)
	e.buf.Write(b)
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

// omitted reports values an object drops instead of rendering.
func omitted(v reflect.Value) bool {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}
