// Package alias resolves user-defined command aliases and expands them
// into verb pipelines (spec §4.6). An alias can live in a local TOML
// file, a user or system alias directory, or an inline table in the
// main YAML config; this package normalizes all three into one
// Definition shape before expansion.
package alias

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/freitascorp/fleetmq/pkg/config"
)

// Source identifies which of the precedence tiers a Definition was
// loaded from; only Source == SourceSystem may carry privileged = true.
type Source int

const (
	SourceLocal Source = iota
	SourceUser
	SourceSystem
	SourceInline
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceUser:
		return "user"
	case SourceSystem:
		return "system"
	case SourceInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Definition is one resolved alias table, still in its raw decoded form
// so Expand can look up stage sub-tables by their "1", "2", ... keys.
type Definition struct {
	Name   string
	Source Source
	Table  map[string]any
}

// IsLocal reports whether this definition came from a tier that can
// never grant restricted-mode bypass (spec §4.6): the working-directory
// file or the inline config table.
func (d *Definition) IsLocal() bool {
	return d.Source == SourceLocal || d.Source == SourceInline
}

// IsPrivileged reports whether this definition may re-enter restricted
// mode with elevated rights: only a system-directory alias explicitly
// marked privileged = true qualifies.
func (d *Definition) IsPrivileged() bool {
	return d.Source == SourceSystem && tableBool(d.Table, "privileged")
}

// Loader resolves alias names against the three (plus the privileged
// system tier) precedence sources.
type Loader struct {
	LocalDir  string // "." by convention
	UserDir   string // ~/.local/moi equivalent
	SystemDir string // system-owned privileged alias directory, may be empty
	Inline    map[string]config.AliasDef
}

// NewLoader builds a Loader over the given directories and inline table.
func NewLoader(localDir, userDir, systemDir string, inline map[string]config.AliasDef) *Loader {
	return &Loader{LocalDir: localDir, UserDir: userDir, SystemDir: systemDir, Inline: inline}
}

// Resolve finds name's alias definition, trying each tier in precedence
// order. It returns nil, nil if no tier defines name — that is not an
// error, it just means the caller should treat name as a plain verb.
func (l *Loader) Resolve(name string) (*Definition, error) {
	for _, tier := range []struct {
		dir string
		src Source
	}{
		{l.LocalDir, SourceLocal},
		{l.UserDir, SourceUser},
		{l.SystemDir, SourceSystem},
	} {
		if tier.dir == "" {
			continue
		}
		def, err := l.loadTOMLFile(filepath.Join(tier.dir, name+".toml"), name, tier.src)
		if err != nil {
			return nil, err
		}
		if def != nil {
			return def, nil
		}
	}

	if ad, ok := l.Inline[name]; ok {
		return definitionFromConfig(name, ad), nil
	}

	return nil, nil
}

func (l *Loader) loadTOMLFile(path, name string, src Source) (*Definition, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("alias: read %s: %w", path, err)
	}

	var table map[string]any
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("alias: parse %s: %w", path, err)
	}
	return &Definition{Name: name, Source: src, Table: table}, nil
}

// definitionFromConfig builds a Definition out of an inline
// commands.NAME table loaded from the YAML config, so Expand can treat
// it uniformly with a TOML-sourced Definition.
func definitionFromConfig(name string, ad config.AliasDef) *Definition {
	table := make(map[string]any)
	if ad.Command != "" {
		table["command"] = ad.Command
	}
	if ad.Args != nil {
		args := make([]any, len(ad.Args))
		for i, a := range ad.Args {
			args[i] = a
		}
		table["args"] = args
	}
	if ad.Alias != "" {
		table["alias"] = ad.Alias
	}
	if ad.Filter != "" {
		table["filter"] = ad.Filter
	}
	if ad.Group != "" {
		table["group"] = ad.Group
	}
	if ad.Help != "" {
		table["help"] = ad.Help
	}
	if ad.Quiet {
		table["quiet"] = true
	}
	if ad.Stages != 0 {
		table["stages"] = int64(ad.Stages)
	}
	return &Definition{Name: name, Source: SourceInline, Table: table}
}
