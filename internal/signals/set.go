package signals

import (
	"bytes"
	"encoding/json"
)

// Entry is one named value in a Set.
type Entry struct {
	Name  Name
	Value Value
}

// Set is an immutable, insertion-ordered mapping from signal name to value.
// The aggregator builds one per run; everything downstream only reads it.
type Set struct {
	names  []Name
	values map[Name]Value
}

// NewSet builds a Set from entries. A repeated name keeps its first
// position and its last value.
func NewSet(entries ...Entry) *Set {
	s := &Set{
		names:  make([]Name, 0, len(entries)),
		values: make(map[Name]Value, len(entries)),
	}
	for _, e := range entries {
		if _, exists := s.values[e.Name]; !exists {
			s.names = append(s.names, e.Name)
		}
		s.values[e.Name] = e.Value
	}
	return s
}

// Get returns the value stored under name.
func (s *Set) Get(name Name) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of entries.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns the entry names in insertion order.
func (s *Set) Names() []Name {
	if s == nil {
		return nil
	}
	out := make([]Name, len(s.names))
	copy(out, s.names)
	return out
}

// Entries returns the entries in insertion order.
func (s *Set) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, Entry{Name: n, Value: s.values[n]})
	}
	return out
}

// ErrorCount returns how many entries are error markers.
func (s *Set) ErrorCount() int {
	n := 0
	for _, e := range s.Entries() {
		if e.Value.IsError() {
			n++
		}
	}
	return n
}

// MarshalJSON renders the set as a JSON object in insertion order.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(e.Name))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
