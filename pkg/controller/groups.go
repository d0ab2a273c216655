// Package controller implements the controller-side correlator (spec
// §4.5): sequencing a pipeline of queries, aggregating responses,
// detecting stage completion by group membership or watchdog expiry,
// and reconciling the final outcome.
package controller

import (
	"fmt"

	"github.com/freitascorp/fleetmq/pkg/store"
)

// GroupMembers returns the addr->name map persisted under groups.<name>,
// or nil if the group has never been saved.
func GroupMembers(s *store.Store, name string) map[string]string {
	v, err := s.Get("groups." + name)
	if err != nil {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		out[k] = store.Stringify(val)
	}
	return out
}

// LookupName resolves addr to a name via the "all" group, or
// "<unknown>" if the group or the address isn't known — matching the
// original's tolerant reverse-lookup default rather than an error.
func LookupName(s *store.Store, addr string) string {
	members := GroupMembers(s, "all")
	if members == nil {
		return "<unknown>"
	}
	if name, ok := members[addr]; ok {
		return name
	}
	return "<unknown>"
}

// LookupAddr resolves name to its unique address via the "all" group.
func LookupAddr(s *store.Store, name string) (string, error) {
	members := GroupMembers(s, "all")
	if members == nil {
		return "", fmt.Errorf("controller: all group is not yet defined for lookup")
	}
	var found string
	count := 0
	for addr, n := range members {
		if n == name {
			found = addr
			count++
		}
	}
	switch count {
	case 0:
		return "", fmt.Errorf("controller: can't look up address of %s", name)
	case 1:
		return found, nil
	default:
		return "", fmt.Errorf("controller: multiple addresses for %s", name)
	}
}

// PersistGroup writes members under groups.<name> and flushes, matching
// the controller's own store discipline (only a groups object, unlike an
// agent's full attribute set).
func PersistGroup(s *store.Store, name string, members map[string]string) error {
	obj := make(map[string]any, len(members))
	for addr, n := range members {
		obj[addr] = n
	}
	existing, err := s.Get("groups")
	groups, ok := existing.(map[string]any)
	if err != nil || !ok {
		groups = make(map[string]any)
	}
	groups[name] = obj
	s.Set("groups", groups)
	return s.Flush()
}
