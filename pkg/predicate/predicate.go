// Package predicate implements the filter language used to select which
// agents act on a query: parsing of the human-readable textual filter
// form, its JSON wire encoding, and pure evaluation against a store
// document.
package predicate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/freitascorp/fleetmq/pkg/store"
)

// Kind tags which condition variant a Condition holds.
type Kind string

const (
	KindExists    Kind = "exists"
	KindEquals    Kind = "eq"
	KindNotEquals Kind = "neq"
	KindStarts    Kind = "starts"
	KindElem      Kind = "elem"
	KindAny       Kind = "any"
	KindAll       Kind = "all"
	KindNone      Kind = "none"
)

// Condition is the recursive tagged predicate structure from the wire
// protocol. Exactly the fields relevant to Kind are meaningful:
// Exists/Equals/NotEquals/Starts/Elem use Key (+Value); Any/All use
// Children; None uses neither.
type Condition struct {
	Kind     Kind
	Key      string
	Value    string
	Children []Condition
}

// None matches every store unconditionally.
func None() Condition { return Condition{Kind: KindNone} }

// Exists builds an Exists(key) condition.
func Exists(key string) Condition { return Condition{Kind: KindExists, Key: key} }

// Equals builds an Equals(key, value) condition.
func Equals(key, value string) Condition { return Condition{Kind: KindEquals, Key: key, Value: value} }

// NotEquals builds a NotEquals(key, value) condition.
func NotEquals(key, value string) Condition {
	return Condition{Kind: KindNotEquals, Key: key, Value: value}
}

// Starts builds a Starts(key, prefix) condition.
func Starts(key, prefix string) Condition { return Condition{Kind: KindStarts, Key: key, Value: prefix} }

// Elem builds an Elem(key, value) condition.
func Elem(key, value string) Condition { return Condition{Kind: KindElem, Key: key, Value: value} }

// Any builds a short-circuit disjunction over cs.
func Any(cs ...Condition) Condition { return Condition{Kind: KindAny, Children: cs} }

// All builds a short-circuit conjunction over cs.
func All(cs ...Condition) Condition { return Condition{Kind: KindAll, Children: cs} }

// UniqueTarget reports whether c is exactly Equals(addr, X) or
// Equals(name, X), the special case the controller uses to identify a
// single narrowcast target (spec §4.2, §4.7). byAddr is true when the key
// was "addr" (already routable); false means a name that needs a
// controller-side lookup.
func (c Condition) UniqueTarget() (value string, byAddr bool, ok bool) {
	if c.Kind != KindEquals {
		return "", false, false
	}
	switch c.Key {
	case "addr":
		return c.Value, true, true
	case "name":
		return c.Value, false, true
	default:
		return "", false, false
	}
}

// Eval is a pure function of one store's document: no side effects, no
// inter-agent state, never an error — missing keys are not errors (spec
// Testable Property 1, "predicate totality").
func (c Condition) Eval(s *store.Store) bool {
	switch c.Kind {
	case KindNone:
		return true
	case KindExists:
		_, err := s.Get(c.Key)
		return err == nil
	case KindEquals:
		v, err := s.Get(c.Key)
		if err != nil {
			return false
		}
		return store.Stringify(v) == c.Value
	case KindNotEquals:
		v, err := s.Get(c.Key)
		if err != nil {
			return true
		}
		return store.Stringify(v) != c.Value
	case KindStarts:
		v, err := s.Get(c.Key)
		if err != nil {
			return false
		}
		return strings.HasPrefix(store.Stringify(v), c.Value)
	case KindElem:
		v, err := s.Get(c.Key)
		if err != nil {
			return false
		}
		arr, ok := store.AsArray(v)
		if !ok {
			return false
		}
		for _, e := range arr {
			if store.Stringify(e) == c.Value {
				return true
			}
		}
		return false
	case KindAny:
		for _, child := range c.Children {
			if child.Eval(s) {
				return true
			}
		}
		return false
	case KindAll:
		for _, child := range c.Children {
			if !child.Eval(s) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ------------------------------------------------------------------
// Wire codec
// ------------------------------------------------------------------

// MarshalJSON renders the single-key-object wire form, e.g.
// {"eq":["k","v"]}, {"exists":["k"]}, {"all":[...]}; None renders as the
// JSON literal null.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindNone, "":
		return []byte("null"), nil
	case KindExists:
		return json.Marshal(map[string][]string{"exists": {c.Key}})
	case KindEquals:
		return json.Marshal(map[string][]string{"eq": {c.Key, c.Value}})
	case KindNotEquals:
		return json.Marshal(map[string][]string{"neq": {c.Key, c.Value}})
	case KindStarts:
		return json.Marshal(map[string][]string{"starts": {c.Key, c.Value}})
	case KindElem:
		return json.Marshal(map[string][]string{"elem": {c.Key, c.Value}})
	case KindAny:
		return json.Marshal(map[string][]Condition{"any": c.Children})
	case KindAll:
		return json.Marshal(map[string][]Condition{"all": c.Children})
	default:
		return nil, fmt.Errorf("predicate: unknown kind %q", c.Kind)
	}
}

// UnmarshalJSON parses the wire form produced by MarshalJSON.
func (c *Condition) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*c = None()
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("predicate: malformed envelope: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("predicate: envelope must have exactly one key, got %d", len(raw))
	}

	for key, val := range raw {
		switch Kind(key) {
		case KindExists:
			var pair []string
			if err := json.Unmarshal(val, &pair); err != nil || len(pair) != 1 {
				return fmt.Errorf("predicate: exists requires a one-element array")
			}
			*c = Exists(pair[0])
		case KindEquals:
			pair, err := twoStrings(val)
			if err != nil {
				return err
			}
			*c = Equals(pair[0], pair[1])
		case KindNotEquals:
			pair, err := twoStrings(val)
			if err != nil {
				return err
			}
			*c = NotEquals(pair[0], pair[1])
		case KindStarts:
			pair, err := twoStrings(val)
			if err != nil {
				return err
			}
			*c = Starts(pair[0], pair[1])
		case KindElem:
			pair, err := twoStrings(val)
			if err != nil {
				return err
			}
			*c = Elem(pair[0], pair[1])
		case KindAny:
			var children []Condition
			if err := json.Unmarshal(val, &children); err != nil {
				return fmt.Errorf("predicate: malformed any: %w", err)
			}
			*c = Any(children...)
		case KindAll:
			var children []Condition
			if err := json.Unmarshal(val, &children); err != nil {
				return fmt.Errorf("predicate: malformed all: %w", err)
			}
			*c = All(children...)
		default:
			return fmt.Errorf("predicate: unknown condition kind %q", key)
		}
	}
	return nil
}

func twoStrings(val json.RawMessage) ([]string, error) {
	var pair []string
	if err := json.Unmarshal(val, &pair); err != nil || len(pair) != 2 {
		return nil, fmt.Errorf("predicate: expected a two-element [key, value] array")
	}
	return pair, nil
}
