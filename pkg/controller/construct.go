package controller

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/freitascorp/fleetmq/pkg/ferrors"
	"github.com/freitascorp/fleetmq/pkg/store"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

// ConstructVerbs turns one plain command-line command (already resolved
// past alias expansion) into the wire Verb(s) it expands to, mirroring
// the original's construct_query match over the command vocabulary
// (spec §4.3). Most commands produce exactly one Verb; push-run and
// run-pull produce two, one per pipeline stage — the original's
// Query::Actions is never sent as a single wire message (its own match
// arm is unreachable, `panic!("used Actions directly!")`), it is a
// marker that the caller must flatten into successive stages, which is
// exactly what returning a slice here does.
func ConstructVerbs(cmd string, args []string) ([]verb.Verb, error) {
	switch cmd {
	case "ls":
		if len(args) == 0 {
			return one(verb.Get("addr", "name")), nil
		}
		return one(verb.Get(args...)), nil

	case "time":
		return one(verb.Get("addr", "name", "time")), nil

	case "ping":
		return one(verb.Ping()), nil

	case "group":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: group: group-name", ferrors.ErrValidation)
		}
		return one(verb.Group(args[0])), nil

	case "set", "seta":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: %s: key1=value1 [key2=value2 ...]", ferrors.ErrValidation, cmd)
		}
		kv, err := splitKeyValues(args)
		if err != nil {
			return nil, err
		}
		if cmd == "set" {
			return one(verb.Set(kv)), nil
		}
		return one(verb.SetArray(kv)), nil

	case "remove-group":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: remove-group: group-name", ferrors.ErrValidation)
		}
		return one(verb.RemoveArray(map[string]any{"groups": args[0]})), nil

	case "run", "launch", "spawn":
		if len(args) < 1 {
			return nil, fmt.Errorf("%w: %s: command [working-dir] [job-name]", ferrors.ErrValidation, cmd)
		}
		rc := verb.RunCommand{Cmd: args[0]}
		if len(args) > 1 {
			rc.Pwd = args[1]
		}
		if len(args) > 2 {
			rc.Job = args[2]
		}
		switch cmd {
		case "run":
			return one(verb.Run(rc)), nil
		case "launch":
			return one(verb.Launch(rc)), nil
		default:
			return one(verb.Spawn(rc)), nil
		}

	case "wait":
		return one(verb.Wait()), nil

	case "push":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: push: local-file-name remote-dest", ferrors.ErrValidation)
		}
		info, err := os.Stat(args[0])
		if err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: push: file does not exist, or is a directory", ferrors.ErrValidation)
		}
		// The file's bytes are read by the caller and carried on
		// StageSpec.UploadBytes — ConstructVerbs only builds the wire
		// metadata half of a cp stage.
		return one(verb.Copy(verb.CopyFile{Filename: filepath.Base(args[0]), Dest: args[1]})), nil

	case "pull":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: pull: remote-file-name local-dest", ferrors.ErrValidation)
		}
		return one(verb.Fetch(args[0])), nil

	case "push-run":
		if len(args) != 3 {
			return nil, fmt.Errorf("%w: push-run: local-file destination command", ferrors.ErrValidation)
		}
		push, err := ConstructVerbs("push", []string{args[0], args[1]})
		if err != nil {
			return nil, err
		}
		run, err := ConstructVerbs("run", []string{args[2], args[1]})
		if err != nil {
			return nil, err
		}
		return append(push, run...), nil

	case "run-pull":
		if len(args) != 3 {
			return nil, fmt.Errorf("%w: run-pull: command dir remote-file", ferrors.ErrValidation)
		}
		run, err := ConstructVerbs("run", []string{args[0], args[1]})
		if err != nil {
			return nil, err
		}
		pull, err := ConstructVerbs("pull", []string{args[2], args[1]})
		if err != nil {
			return nil, err
		}
		return append(run, pull...), nil

	case "restart":
		return one(verb.Restart(0)), nil

	default:
		return nil, fmt.Errorf("%w: not a command: %s", ferrors.ErrValidation, cmd)
	}
}

func one(v verb.Verb) []verb.Verb { return []verb.Verb{v} }

func splitKeyValues(args []string) (map[string]any, error) {
	kv := make(map[string]any, len(args))
	for _, s := range args {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a key-value pair", ferrors.ErrValidation, s)
		}
		if !store.ValidKey(k) {
			return nil, fmt.Errorf("%w: %s is not a valid key name", ferrors.ErrValidation, k)
		}
		kv[k] = inferScalar(v)
	}
	return kv, nil
}

// inferScalar parses a command-line value into a bool or a float64
// number where it unambiguously reads as one (integers included),
// falling back to the literal string —
// matching the store's tolerant JSON-shaped document model.
func inferScalar(v string) any {
	if v == "true" {
		return true
	}
	if v == "false" {
		return false
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}
