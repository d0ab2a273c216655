package alias

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freitascorp/fleetmq/pkg/config"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

func construct(cmd string, args []string) ([]verb.Verb, error) {
	switch cmd {
	case "run":
		return []verb.Verb{verb.Run(verb.RunCommand{Cmd: args[0]})}, nil
	case "ls":
		return []verb.Verb{verb.Get(args...)}, nil
	case "ping":
		return []verb.Verb{verb.Ping()}, nil
	default:
		return nil, errUnknown(cmd)
	}
}

type unknownCommandError string

func (e unknownCommandError) Error() string { return "not a command: " + string(e) }

func errUnknown(cmd string) error { return unknownCommandError(cmd) }

func writeTOML(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".toml"), []byte(body), 0o644))
}

func TestLoader_ResolveLocalBeatsUser(t *testing.T) {
	localDir, userDir := t.TempDir(), t.TempDir()
	writeTOML(t, localDir, "deploy", "command = \"run\"\nargs = [\"echo local\"]\n")
	writeTOML(t, userDir, "deploy", "command = \"run\"\nargs = [\"echo user\"]\n")

	l := NewLoader(localDir, userDir, "", nil)
	def, err := l.Resolve("deploy")
	require.NoError(t, err)
	require.NotNil(t, def)
	require.Equal(t, SourceLocal, def.Source)
}

func TestLoader_ResolveFallsBackToInline(t *testing.T) {
	l := NewLoader(t.TempDir(), t.TempDir(), "", map[string]config.AliasDef{
		"deploy": {Command: "run", Args: []string{"echo $1"}},
	})
	def, err := l.Resolve("deploy")
	require.NoError(t, err)
	require.NotNil(t, def)
	require.Equal(t, SourceInline, def.Source)
}

func TestLoader_ResolveMissingReturnsNilNotError(t *testing.T) {
	l := NewLoader(t.TempDir(), t.TempDir(), "", nil)
	def, err := l.Resolve("nope")
	require.NoError(t, err)
	require.Nil(t, def)
}

func TestExpand_SimpleCommandSubstitutesArgs(t *testing.T) {
	l := NewLoader(t.TempDir(), "", "", map[string]config.AliasDef{
		"greet": {Command: "run", Args: []string{"echo hello $1"}},
	})
	def, err := l.Resolve("greet")
	require.NoError(t, err)

	res, err := l.Expand(def, Call{Command: "greet", Arguments: []string{"world"}}, construct)
	require.NoError(t, err)
	require.Len(t, res.Verbs, 1)
	require.Equal(t, "echo hello world", res.Verbs[0].Run.Cmd)
}

func TestExpand_StagesConcatenatesPipeline(t *testing.T) {
	dir := t.TempDir()
	writeTOML(t, dir, "rollout", `
command = "run"
args = ["echo stage1"]
stages = 2

[1]
command = "run"
args = ["echo stage1"]

[2]
command = "ping"
args = []
`)
	l := NewLoader(dir, "", "", nil)
	def, err := l.Resolve("rollout")
	require.NoError(t, err)

	res, err := l.Expand(def, Call{Command: "rollout"}, construct)
	require.NoError(t, err)
	require.Len(t, res.Verbs, 2)
	require.Equal(t, "echo stage1", res.Verbs[0].Run.Cmd)
	require.Equal(t, verb.KindGet, res.Verbs[1].Kind)
}

func TestExpand_FilterQuietAndHelpOverride(t *testing.T) {
	dir := t.TempDir()
	writeTOML(t, dir, "webonly", `
command = "ping"
args = []
filter = "role=web"
quiet = true
help = "ping the web fleet"
`)
	l := NewLoader(dir, "", "", nil)
	def, err := l.Resolve("webonly")
	require.NoError(t, err)

	res, err := l.Expand(def, Call{Command: "webonly"}, construct)
	require.NoError(t, err)
	require.Equal(t, "role=web", res.Filter)
	require.True(t, res.Quiet)
	require.Equal(t, "ping the web fleet", res.Help)
}

func TestExpand_RedispatchViaAliasKey(t *testing.T) {
	dir := t.TempDir()
	writeTOML(t, dir, "base", `
command = "run"
args = ["echo $1"]
`)
	writeTOML(t, dir, "wrapper", `alias = "base"`)

	l := NewLoader(dir, "", "", nil)
	def, err := l.Resolve("wrapper")
	require.NoError(t, err)

	res, err := l.Expand(def, Call{Command: "wrapper", Arguments: []string{"redispatched"}}, construct)
	require.NoError(t, err)
	require.Len(t, res.Verbs, 1)
	require.Equal(t, "echo redispatched", res.Verbs[0].Run.Cmd)
}

func TestExpand_MissingRedispatchTargetErrors(t *testing.T) {
	dir := t.TempDir()
	writeTOML(t, dir, "wrapper", `alias = "ghost"`)

	l := NewLoader(dir, "", "", nil)
	def, err := l.Resolve("wrapper")
	require.NoError(t, err)

	_, err = l.Expand(def, Call{Command: "wrapper"}, construct)
	require.Error(t, err)
}

func TestDefinition_PrivilegedOnlyFromSystemDir(t *testing.T) {
	sysDir := t.TempDir()
	writeTOML(t, sysDir, "reboot-all", `
command = "restart"
args = []
privileged = true
`)
	l := NewLoader(t.TempDir(), t.TempDir(), sysDir, nil)
	def, err := l.Resolve("reboot-all")
	require.NoError(t, err)
	require.True(t, def.IsPrivileged())
	require.False(t, def.IsLocal())
}

func TestCheckRestricted_AllowlistAndPrivilegedBypass(t *testing.T) {
	require.NoError(t, CheckRestricted(true, "ping", false))
	require.Error(t, CheckRestricted(true, "run", false))
	require.NoError(t, CheckRestricted(true, "run", true))
	require.NoError(t, CheckRestricted(false, "run", false))
}

func TestSplitChain_SplitsOnDoubleColon(t *testing.T) {
	calls, err := SplitChain([]string{"push", "file.tar", "drop", "::", "run", "tar xf file.tar"})
	require.NoError(t, err)
	require.Len(t, calls, 2)
	require.Equal(t, "push", calls[0].Command)
	require.Equal(t, []string{"file.tar", "drop"}, calls[0].Arguments)
	require.Equal(t, "run", calls[1].Command)
}

func TestSplitChain_EmptyChunkErrors(t *testing.T) {
	_, err := SplitChain([]string{"run", "x", "::", "::", "ping"})
	require.Error(t, err)
}

func TestSubstitute_PositionalAndEscape(t *testing.T) {
	out, err := Substitute("deploy $1 to $2 cost \\$$$1", []string{"app", "prod"})
	require.NoError(t, err)
	require.Equal(t, "deploy app to prod cost \\$app", out)
}

func TestSubstitute_PackageVersionBaseStem(t *testing.T) {
	args := []string{"myapp-1.2.3", "/opt/builds/release-9.tar.gz"}

	pkg, err := Substitute("$(1:package)", args)
	require.NoError(t, err)
	require.Equal(t, "myapp", pkg)

	version, err := Substitute("$(1:version)", args)
	require.NoError(t, err)
	require.Equal(t, "1.2.3", version)

	base, err := Substitute("$(2:base)", args)
	require.NoError(t, err)
	require.Equal(t, "release-9.tar.gz", base)

	stem, err := Substitute("$(2:stem)", args)
	require.NoError(t, err)
	require.Equal(t, "release-9", stem)
}

func TestSubstitute_IndexOutOfRangeErrors(t *testing.T) {
	_, err := Substitute("$2", []string{"only-one"})
	require.Error(t, err)
}
