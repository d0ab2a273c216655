// Package store implements the persistent per-agent key/value document:
// a mapping from string keys to scalar, array, or nested-object values,
// with dotted-path lookups, idempotent array mutation, and atomic flush
// to a pluggable backend.
package store

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Reserved holds the keys the external verb surface may never clobber:
// addr, name, time, groups. Agent-side internals (synthesizing addr/name
// at load, the rc result-code convention) write them directly against
// the Document, bypassing the verb-surface check.
var Reserved = map[string]bool{
	"addr":   true,
	"name":   true,
	"time":   true,
	"groups": true,
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidKey reports whether key is a syntactically legal store key
// (alphanumeric plus hyphen) and is not one of the reserved names.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key) && !Reserved[key]
}

// ErrNotFound is returned by Get when the key (or a dotted path
// component) is entirely absent.
var ErrNotFound = fmt.Errorf("key not found")

// Store is the in-memory document plus the backend it flushes to.
// Every read, mutation and flush takes the same mutex, each as its own
// critical section; a mutation and a later Flush are two separate steps.
type Store struct {
	mu      sync.Mutex
	data    map[string]any
	backend Backend
}

// New wraps an already-loaded document with a backend to flush to.
func New(data map[string]any, backend Backend) *Store {
	if data == nil {
		data = make(map[string]any)
	}
	return &Store{data: data, backend: backend}
}

// Load reads the document from backend and returns a ready Store.
func Load(backend Backend) (*Store, error) {
	data, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	return New(data, backend), nil
}

// Get resolves a dotted path (a.b.c) through nested objects. A missing
// intermediate object yields ErrNotFound, never a panic or type error.
func (s *Store) Get(key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.data, key)
}

// GetOr is Get with a default substituted for ErrNotFound.
func (s *Store) GetOr(key string, def any) any {
	v, err := s.Get(key)
	if err != nil {
		return def
	}
	return v
}

func get(data map[string]any, key string) (any, error) {
	parts := strings.Split(key, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, ErrNotFound
		}
		v, ok := m[p]
		if !ok {
			return nil, ErrNotFound
		}
		cur = v
	}
	return cur, nil
}

// Set writes a scalar/array/object value under key. A nil value deletes
// the key. The reserved-key check is the verb surface's job (see
// ValidKey) — Set itself trusts its caller, matching the agent-side
// convention that internal writes (rc, addr synthesis) bypass it.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.data, key)
		return
	}
	s.data[key] = value
}

// InsertArray ensures key holds an array and idempotently inserts value
// into it (no duplicate, compared by stringified form), or — if remove
// is true — removes the first equal entry. It is an error if the
// existing slot is present and not an array.
func (s *Store) InsertArray(key string, value any, remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[key]
	arr := []any{}
	if ok {
		a, isArr := existing.([]any)
		if !isArr {
			return fmt.Errorf("key %q is not an array", key)
		}
		arr = a
	}

	target := Stringify(value)
	idx := -1
	for i, v := range arr {
		if Stringify(v) == target {
			idx = i
			break
		}
	}

	if remove {
		if idx >= 0 {
			arr = append(arr[:idx], arr[idx+1:]...)
		}
	} else if idx < 0 {
		arr = append(arr, value)
	}

	s.data[key] = arr
	return nil
}

// Flush atomically persists the full document through the backend.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Save(s.data)
}

// Snapshot returns a shallow copy of the document, safe to marshal or
// range over without holding the store's lock.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Keys returns the document's top-level keys, sorted, mostly useful for
// the "commands"/"groups" local CLI verbs and for tests.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stringify renders any store value (scalar, array, object, nil) to the
// canonical string form used for predicate comparisons. Comparisons are
// always on this stringified form, per the wire predicate semantics.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Stringify(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + Stringify(x[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// AsArray type-asserts a store value as an array, for Elem evaluation.
func AsArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}
