package models

import "encoding/json"

// StringSet is an insertion-ordered set of strings that encodes as a JSON array.
// The zero value is ready to use. It is not safe for concurrent use.
type StringSet struct {
	items []string
	index map[string]struct{}
}

// NewStringSet returns a set seeded with the non-empty values.
func NewStringSet(values ...string) StringSet {
	var s StringSet
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was new. Empty strings are ignored.
func (s *StringSet) Add(v string) bool {
	if v == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Contains reports membership.
func (s StringSet) Contains(v string) bool {
	_, ok := s.index[v]
	return ok
}

// Len returns the number of members.
func (s StringSet) Len() int {
	return len(s.items)
}

// Values returns a copy of the members in insertion order.
func (s StringSet) Values() []string {
	return append([]string{}, s.items...)
}

// Clone returns an independent copy.
func (s StringSet) Clone() StringSet {
	return NewStringSet(s.items...)
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}
