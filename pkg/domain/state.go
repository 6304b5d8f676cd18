package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// State is a flat container of named fields, scoped either to a single stage
// (local data) or to a whole session (global data). Field names are unique
// within one container; setting an existing field replaces its value.
//
// State is not safe for concurrent use. The session manager serializes all
// access per session, so containers never need their own locking.
type State struct {
	data map[string]any
}

// NewState creates an empty container.
func NewState() *State {
	return &State{data: make(map[string]any)}
}

// NewStateFrom creates a container seeded with a copy of the given fields.
func NewStateFrom(fields map[string]any) *State {
	s := NewState()
	for k, v := range fields {
		s.data[k] = v
	}
	return s
}

// Set stores a value under the given field name, replacing any previous value.
func (s *State) Set(key string, value any) {
	s.data[key] = value
}

// Get returns the raw value for a field and whether it is present.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Has reports whether the field is present.
func (s *State) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

// Delete removes a field. Deleting an absent field is a no-op.
func (s *State) Delete(key string) {
	delete(s.data, key)
}

// Len returns the number of fields.
func (s *State) Len() int {
	return len(s.data)
}

// Fields returns all field names in lexical order.
func (s *State) Fields() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies every entry of fields into the container, overwriting
// existing values. Later writes win; supplying the same field twice leaves
// only the latest value.
func (s *State) Merge(fields map[string]any) {
	for k, v := range fields {
		s.data[k] = v
	}
}

// Snapshot returns a shallow copy of the underlying map. Mutating the
// returned map does not affect the container.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of the container.
func (s *State) Clone() *State {
	return NewStateFrom(s.data)
}

// MarshalJSON encodes the container as a plain JSON object.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.data)
}

// UnmarshalJSON decodes a plain JSON object into the container.
func (s *State) UnmarshalJSON(b []byte) error {
	m := make(map[string]any)
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	s.data = m
	return nil
}

// GetAs retrieves a field and asserts it to the requested type.
// It returns an error when the field is absent or holds a different type.
func GetAs[T any](s *State, key string) (T, error) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, fmt.Errorf("field %q: %w", key, ErrFieldNotFound)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("field %q: %w: wanted %v, got %v",
			key, ErrFieldType, reflect.TypeOf(zero), reflect.TypeOf(v))
	}
	return typed, nil
}
