// SPDX-License-Identifier: MPL-2.0

package environ

import (
	"maps"
	"slices"
	"strings"
)

// Env is an insertion-ordered set of environment variables. Keys are unique;
// setting an existing key replaces its value in place.
// The zero value is an empty, ready to use Env.
type Env struct {
	keys   []string
	values map[string]string
}

// New returns an empty Env.
func New() *Env {
	return &Env{values: make(map[string]string)}
}

// FromSlice builds an Env from "KEY=VALUE" entries, in order.
// Entries without a separator or with an empty key are skipped.
func FromSlice(entries []string) *Env {
	e := New()
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		e.Set(key, value)
	}
	return e
}

// FromMap builds an Env from a map. Keys are inserted in sorted order so the
// result is deterministic.
func FromMap(m map[string]string) *Env {
	e := New()
	for _, key := range slices.Sorted(maps.Keys(m)) {
		e.Set(key, m[key])
	}
	return e
}

// Set inserts or replaces a variable.
func (e *Env) Set(key, value string) {
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, exists := e.values[key]; !exists {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Lookup returns the value of key and whether it is set.
func (e *Env) Lookup(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	v, ok := e.values[key]
	return v, ok
}

// Get returns the value of key, or "" when unset.
func (e *Env) Get(key string) string {
	v, _ := e.Lookup(key)
	return v
}

// Delete removes key. Deleting a missing key is a no-op.
func (e *Env) Delete(key string) {
	if _, ok := e.values[key]; !ok {
		return
	}
	delete(e.values, key)
	e.keys = slices.DeleteFunc(e.keys, func(k string) bool { return k == key })
}

// Len returns the number of variables.
func (e *Env) Len() int {
	if e == nil {
		return 0
	}
	return len(e.keys)
}

// Keys returns the variable names in insertion order.
func (e *Env) Keys() []string {
	if e == nil {
		return nil
	}
	return slices.Clone(e.keys)
}

// Merge copies every variable of other into e; other wins on conflicts.
func (e *Env) Merge(other *Env) {
	if other == nil {
		return
	}
	for _, key := range other.keys {
		e.Set(key, other.values[key])
	}
}

// Clone returns an independent copy.
func (e *Env) Clone() *Env {
	c := New()
	c.Merge(e)
	return c
}

// PrependPath puts dir in front of the list stored under key, using sep as
// the list separator. An unset or empty list becomes just dir.
func (e *Env) PrependPath(key, dir, sep string) {
	current := e.Get(key)
	if current == "" {
		e.Set(key, dir)
		return
	}
	e.Set(key, dir+sep+current)
}

// Slice returns the variables as "KEY=VALUE" entries in insertion order.
func (e *Env) Slice() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.keys))
	for _, key := range e.keys {
		out = append(out, key+"="+e.values[key])
	}
	return out
}

// Map returns a copy of the variables as a plain map.
func (e *Env) Map() map[string]string {
	out := make(map[string]string, e.Len())
	if e != nil {
		maps.Copy(out, e.values)
	}
	return out
}

// Equal reports whether both sets hold the same variables with the same
// values. Order is ignored.
func (e *Env) Equal(other *Env) bool {
	return maps.Equal(e.Map(), other.Map())
}
