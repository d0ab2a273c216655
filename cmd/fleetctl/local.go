package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/freitascorp/fleetmq/pkg/alias"
	"github.com/freitascorp/fleetmq/pkg/config"
	"github.com/freitascorp/fleetmq/pkg/store"
)

// commandsCmd lists every alias this controller can resolve, across all
// three precedence tiers plus the inline commands table, with its help
// text (spec §4.6's "local commands").
func commandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "list known command aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}

			names := make(map[string]bool)
			for name := range cfg.Commands {
				names[name] = true
			}
			for _, dir := range []string{".", filepath.Join(cfg.Home, ".fleetmq", "aliases"), "/etc/fleetmq/aliases"} {
				entries, err := os.ReadDir(dir)
				if err != nil {
					continue
				}
				for _, e := range entries {
					if filepath.Ext(e.Name()) == ".toml" {
						names[e.Name()[:len(e.Name())-len(".toml")]] = true
					}
				}
			}

			loader := alias.NewLoader(".", filepath.Join(cfg.Home, ".fleetmq", "aliases"), "/etc/fleetmq/aliases", cfg.Commands)
			sorted := make([]string, 0, len(names))
			for n := range names {
				sorted = append(sorted, n)
			}
			sort.Strings(sorted)

			for _, name := range sorted {
				def, err := loader.Resolve(name)
				if err != nil || def == nil {
					continue
				}
				help, _ := def.Table["help"].(string)
				if help == "" {
					help = "<no help>"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", name, help)
			}
			return nil
		},
	}
}

// groupsCmd lists the controller's persisted groups and their member
// counts.
func groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "list persisted group names",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			backend, err := store.NewBackend(store.BackendConfig{Backend: cfg.StoreBackend, FilePath: cfg.Store}, "controller")
			if err != nil {
				return err
			}
			s, err := store.Load(backend)
			if err != nil {
				return err
			}
			all, err := s.Get("groups")
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no groups defined")
				return nil
			}
			obj, ok := all.(map[string]any)
			if !ok {
				return nil
			}
			sorted := make([]string, 0, len(obj))
			for name := range obj {
				sorted = append(sorted, name)
			}
			sort.Strings(sorted)
			for _, name := range sorted {
				members, _ := obj[name].(map[string]any)
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d member(s)\n", name, len(members))
			}
			return nil
		},
	}
}

// setupCmd scaffolds a default config file and empty store for a fresh
// controller install, mirroring the original CLI's first-run behavior.
func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "write a default config file and empty store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flagConfig); err == nil {
				return fmt.Errorf("fleetctl: %s already exists", flagConfig)
			}
			if err := os.MkdirAll(filepath.Dir(flagConfig), 0o755); err != nil {
				return err
			}
			const defaultConfig = `mqtt_addr: "tcp://localhost:1883"
store: "/var/lib/fleetmq/controller-store.json"
store_backend: "file"
log_level: "info"
restricted: "yes"
`
			if err := os.WriteFile(flagConfig, []byte(defaultConfig), 0o644); err != nil {
				return err
			}

			storePath := "/var/lib/fleetmq/controller-store.json"
			if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
				return err
			}
			if _, err := os.Stat(storePath); os.IsNotExist(err) {
				if err := os.WriteFile(storePath, []byte("{}"), 0o644); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", flagConfig, storePath)
			return nil
		},
	}
}
