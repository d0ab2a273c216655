package agent

import "time"

// Plugin extends the agent with synthetic get keys and custom invoke
// verbs without requiring dynamic loading — compile-time registration in
// an ordered list is enough (spec §9 Design Notes).
type Plugin interface {
	// Var returns a synthesized value for a get key, or ok=false if this
	// plugin doesn't handle name.
	Var(name string) (value any, ok bool)
	// Command handles an invoke verb, or ok=false if this plugin doesn't
	// handle name.
	Command(name string, args []string) (result any, err error, ok bool)
}

// Registry is an ordered list of Plugins; the first Some wins for both
// hooks.
type Registry struct {
	plugins []Plugin
}

// NewRegistry builds a Registry seeded with the built-in plugin plus any
// caller-supplied extras, in order.
func NewRegistry(extra ...Plugin) *Registry {
	return &Registry{plugins: append([]Plugin{builtinPlugin{}}, extra...)}
}

// Var runs the var hook across all registered plugins in order.
func (r *Registry) Var(name string) (any, bool) {
	for _, p := range r.plugins {
		if v, ok := p.Var(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Command runs the command hook across all registered plugins in order.
func (r *Registry) Command(name string, args []string) (any, error, bool) {
	for _, p := range r.plugins {
		if v, err, ok := p.Command(name, args); ok {
			return v, err, true
		}
	}
	return nil, nil, false
}

// builtinPlugin supplies the one synthetic key every agent has: the
// current time, for use in filters like `time` or path substitution.
type builtinPlugin struct{}

func (builtinPlugin) Var(name string) (any, bool) {
	if name == "time" {
		return float64(time.Now().Unix()), true
	}
	return nil, false
}

func (builtinPlugin) Command(string, []string) (any, error, bool) {
	return nil, nil, false
}
