package predicate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freitascorp/fleetmq/pkg/store"
)

func docStore(doc map[string]any) *store.Store {
	return store.New(doc, nil)
}

func TestParse_Grammar(t *testing.T) {
	cases := []struct {
		txt  string
		want Condition
	}{
		{"none", None()},
		{"role", Exists("role")},
		{"role=web", Equals("role", "web")},
		{"role=web#", Starts("role", "web")},
		{"role.not.web", NotEquals("role", "web")},
		{"groups:prod", Elem("groups", "prod")},
		{"any role=web role=db", Any(Equals("role", "web"), Equals("role", "db"))},
		{"all role arch=x86_64", All(Exists("role"), Equals("arch", "x86_64"))},
	}
	for _, tc := range cases {
		t.Run(tc.txt, func(t *testing.T) {
			require.Equal(t, tc.want, Parse(tc.txt))
		})
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	conditions := []Condition{
		None(),
		Exists("role"),
		Equals("role", "web"),
		Starts("role", "we"),
		NotEquals("role", "web"),
		Elem("groups", "prod"),
		Any(Equals("role", "web"), Equals("role", "db")),
		All(Exists("role"), Equals("arch", "x86_64")),
	}
	for _, c := range conditions {
		rendered := Render(c)
		require.Equal(t, c, Parse(rendered), "round trip of %q", rendered)
	}
}

func TestCondition_JSONRoundTrip(t *testing.T) {
	conditions := []Condition{
		None(),
		Exists("role"),
		Equals("role", "web"),
		NotEquals("role", "web"),
		Starts("role", "we"),
		Elem("groups", "prod"),
		Any(Equals("role", "web"), Elem("groups", "prod")),
		All(Exists("role"), Any(Equals("a", "1"), Equals("a", "2"))),
	}
	for _, c := range conditions {
		raw, err := json.Marshal(c)
		require.NoError(t, err)

		var decoded Condition
		require.NoError(t, json.Unmarshal(raw, &decoded))
		require.Equal(t, c, decoded)
	}
}

func TestCondition_UnmarshalRejectsMalformed(t *testing.T) {
	bad := []string{
		`{"eq":["onlyone"]}`,
		`{"exists":["a","b"]}`,
		`{"eq":["a","b"],"neq":["c","d"]}`,
		`{"bogus":["a","b"]}`,
		`not json`,
	}
	for _, b := range bad {
		var c Condition
		require.Error(t, json.Unmarshal([]byte(b), &c), b)
	}
}

func TestEval_Totality(t *testing.T) {
	s := docStore(map[string]any{
		"role":   "web",
		"arch":   "x86_64",
		"groups": []any{"prod", "east"},
	})

	require.True(t, None().Eval(s))
	require.True(t, Exists("role").Eval(s))
	require.False(t, Exists("missing").Eval(s))

	require.True(t, Equals("role", "web").Eval(s))
	require.False(t, Equals("missing", "x").Eval(s), "Equals on missing key is false, not an error")

	require.True(t, NotEquals("role", "db").Eval(s))
	require.True(t, NotEquals("missing", "x").Eval(s), "NotEquals on missing key succeeds")

	require.True(t, Starts("role", "we").Eval(s))
	require.False(t, Starts("missing", "we").Eval(s))

	require.True(t, Elem("groups", "prod").Eval(s))
	require.False(t, Elem("groups", "west").Eval(s))
	require.False(t, Elem("role", "web").Eval(s), "Elem against a non-array is false")
	require.False(t, Elem("missing", "prod").Eval(s))
}

func TestEval_AnyAllShortCircuit(t *testing.T) {
	s := docStore(map[string]any{"role": "web"})

	require.True(t, Any(Equals("role", "db"), Equals("role", "web")).Eval(s))
	require.False(t, Any(Equals("role", "db"), Equals("role", "cache")).Eval(s))
	require.True(t, All(Exists("role"), Equals("role", "web")).Eval(s))
	require.False(t, All(Exists("role"), Equals("role", "db")).Eval(s))

	// Vacuous Any is false, vacuous All is true, matching standard
	// short-circuit fold semantics.
	require.False(t, Any().Eval(s))
	require.True(t, All().Eval(s))
}

func TestUniqueTarget(t *testing.T) {
	value, byAddr, ok := Equals("addr", "10.0.0.1").UniqueTarget()
	require.True(t, ok)
	require.True(t, byAddr)
	require.Equal(t, "10.0.0.1", value)

	value, byAddr, ok = Equals("name", "node1").UniqueTarget()
	require.True(t, ok)
	require.False(t, byAddr)
	require.Equal(t, "node1", value)

	_, _, ok = Equals("role", "web").UniqueTarget()
	require.False(t, ok)

	_, _, ok = Exists("addr").UniqueTarget()
	require.False(t, ok)
}
