package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	vars     map[string]any
	commands map[string]any
}

func (p fakePlugin) Var(name string) (any, bool) {
	v, ok := p.vars[name]
	return v, ok
}

func (p fakePlugin) Command(name string, _ []string) (any, error, bool) {
	v, ok := p.commands[name]
	return v, nil, ok
}

func TestRegistry_BuiltinTimeKey(t *testing.T) {
	r := NewRegistry()
	v, ok := r.Var("time")
	require.True(t, ok)
	require.IsType(t, float64(0), v)
}

func TestRegistry_UnknownVarMisses(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Var("nope")
	require.False(t, ok)
}

func TestRegistry_FirstSomeWins(t *testing.T) {
	first := fakePlugin{vars: map[string]any{"region": "us-east"}}
	second := fakePlugin{vars: map[string]any{"region": "us-west"}}
	r := NewRegistry(first, second)
	v, ok := r.Var("region")
	require.True(t, ok)
	require.Equal(t, "us-east", v)
}

func TestRegistry_CommandDispatch(t *testing.T) {
	p := fakePlugin{commands: map[string]any{"deploy": "started"}}
	r := NewRegistry(p)
	v, err, ok := r.Command("deploy", []string{"v2"})
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, "started", v)
}

func TestRegistry_UnknownCommandMisses(t *testing.T) {
	r := NewRegistry()
	_, _, ok := r.Command("nope", nil)
	require.False(t, ok)
}
