package alias

import (
	"fmt"
	"strconv"

	"github.com/freitascorp/fleetmq/pkg/ferrors"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

// ConstructFunc builds the wire Verb(s) for a plain (non-alias) command
// name plus its arguments; callers pass their own verb-construction
// switch so this package stays ignorant of the verb vocabulary's shape.
// Most commands return one Verb; a few (push-run, run-pull) expand to
// two successive pipeline stages.
type ConstructFunc func(command string, args []string) ([]verb.Verb, error)

// ExpandResult is everything one alias expansion contributes toward the
// enclosing command-line invocation: the verb(s) to run, and any
// filter/group/quiet overrides the alias itself requested.
type ExpandResult struct {
	Verbs  []verb.Verb
	Filter string // "" means the alias didn't override the filter
	Group  string // "" means the alias didn't override the group
	Quiet  bool
	Help   string
}

// Expand resolves def (following an "alias" redispatch chain if
// present) and builds its verb pipeline against call's arguments,
// mirroring the original's query_alias_collect mechanics: filter/group
// override, an optional quiet flag, a help string, and `stages = N`
// concatenation of numbered sub-tables into a multi-stage pipeline.
func (l *Loader) Expand(def *Definition, call Call, construct ConstructFunc) (ExpandResult, error) {
	var res ExpandResult
	if err := l.expandInto(def, call, construct, &res, 0); err != nil {
		return ExpandResult{}, err
	}
	return res, nil
}

const maxRedispatchDepth = 8

func (l *Loader) expandInto(def *Definition, call Call, construct ConstructFunc, res *ExpandResult, depth int) error {
	if depth > maxRedispatchDepth {
		return fmt.Errorf("alias: %s: redispatch chain too deep", call.Command)
	}

	t := def.Table
	if redispatch, ok := tableString(t, "alias"); ok && redispatch != "" {
		next, err := l.Resolve(redispatch)
		if err != nil {
			return err
		}
		if next == nil {
			return fmt.Errorf("alias: %s: redispatch target %q is not defined", call.Command, redispatch)
		}
		return l.expandInto(next, call, construct, res, depth+1)
	}

	if filter, ok := tableString(t, "filter"); ok {
		res.Filter = filter
	} else if group, ok := tableString(t, "group"); ok {
		res.Group = group
	}
	if tableBool(t, "quiet") {
		res.Quiet = true
	}
	res.Help = tableStringOr(t, "help", "<no help>")

	stages := tableInt(t, "stages", 0)
	if stages == 0 {
		vs, err := expandOne(t, call, construct, res.Help)
		if err != nil {
			return err
		}
		res.Verbs = append(res.Verbs, vs...)
		return nil
	}

	for i := 1; i <= stages; i++ {
		idx := strconv.Itoa(i)
		sub, ok := tableSubTable(t, idx)
		if !ok {
			return fmt.Errorf("alias: %s: stage %s not found", call.Command, idx)
		}
		vs, err := expandOne(sub, call, construct, res.Help)
		if err != nil {
			return err
		}
		res.Verbs = append(res.Verbs, vs...)
	}
	return nil
}

func expandOne(t map[string]any, call Call, construct ConstructFunc, help string) ([]verb.Verb, error) {
	command, ok := tableString(t, "command")
	if !ok {
		return nil, fmt.Errorf("%w: alias command must be defined", ferrors.ErrValidation)
	}
	rawArgs, ok := tableStringSlice(t, "args")
	if !ok {
		return nil, fmt.Errorf("%w: alias args must be an array of strings", ferrors.ErrValidation)
	}

	args, err := SubstituteAll(rawArgs, call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", call.Command, help, err)
	}
	return construct(command, args)
}

// ReadOnlyVerbs is the restricted-mode allowlist (spec §4.6): an
// unprivileged controller invocation may only run these verbs directly.
var ReadOnlyVerbs = map[string]bool{"ls": true, "time": true, "ping": true}

// CheckRestricted enforces the restricted-mode allowlist for a resolved
// command name. privileged should be true only when the command came
// from a Definition whose IsPrivileged() is true — a system-owned alias
// re-entering with elevated rights bypasses the allowlist entirely.
func CheckRestricted(restricted bool, command string, privileged bool) error {
	if !restricted || privileged || ReadOnlyVerbs[command] {
		return nil
	}
	return fmt.Errorf("%w: %q is not permitted in restricted mode", ferrors.ErrValidation, command)
}
