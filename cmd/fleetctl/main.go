// Command fleetctl is the controller CLI: it resolves a command word
// (plain or alias) into a pipeline of verbs, runs them against the
// fleet over the query bus, and prints responses as they arrive (spec
// §4.5, §4.6).
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/freitascorp/fleetmq/pkg/alias"
	"github.com/freitascorp/fleetmq/pkg/audit"
	"github.com/freitascorp/fleetmq/pkg/config"
	"github.com/freitascorp/fleetmq/pkg/controller"
	"github.com/freitascorp/fleetmq/pkg/logger"
	"github.com/freitascorp/fleetmq/pkg/predicate"
	"github.com/freitascorp/fleetmq/pkg/store"
	"github.com/freitascorp/fleetmq/pkg/transport"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

var (
	flagConfig  string
	flagFilter  string
	flagGroup   string
	flagName    string
	flagTimeout time.Duration
	flagVerbose bool
	flagQuiet   bool
	flagJSON    bool
)

func main() {
	root := &cobra.Command{
		Use:                "fleetctl command [args...] [:: command [args...]]",
		Short:              "send a command to the fleet",
		DisableFlagParsing: false,
		Args:               cobra.MinimumNArgs(1),
		SilenceUsage:       true,
		RunE:               runRoot,
	}

	root.Flags().StringVar(&flagConfig, "config", "/etc/fleetmq/fleetctl.yaml", "path to the controller's YAML config file")
	root.Flags().StringVarP(&flagFilter, "filter", "f", "", "textual filter expression overriding the default target")
	root.Flags().StringVarP(&flagGroup, "group", "g", "", "named group to target")
	root.Flags().StringVarP(&flagName, "name", "n", "", "target a single device by name")
	root.Flags().DurationVarP(&flagTimeout, "timeout", "T", 0, "override the per-stage watchdog timeout")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress per-response output")
	root.Flags().BoolVarP(&flagJSON, "json", "m", false, "print responses as JSON lines")

	root.AddCommand(groupsCmd(), commandsCmd(), setupCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl:", err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	level := "info"
	if flagVerbose {
		level = "debug"
	}
	log, closer := logger.New(logger.Options{Level: level})
	if closer != nil {
		defer closer.Close()
	}

	backend, err := store.NewBackend(store.BackendConfig{
		Backend:  cfg.StoreBackend,
		FilePath: cfg.Store,
	}, "controller")
	if err != nil {
		return fmt.Errorf("store backend: %w", err)
	}
	s, err := store.Load(backend)
	if err != nil {
		return fmt.Errorf("store load: %w", err)
	}

	calls, err := alias.SplitChain(args)
	if err != nil {
		return err
	}

	loader := alias.NewLoader(".", filepath.Join(cfg.Home, ".fleetmq", "aliases"), "/etc/fleetmq/aliases", cfg.Commands)

	filterExpr := flagFilter
	groupName := flagGroup
	quiet := flagQuiet

	var stages []controller.StageSpec
	for i, call := range calls {
		def, err := loader.Resolve(call.Command)
		if err != nil {
			return err
		}

		if def == nil {
			if err := alias.CheckRestricted(cfg.IsRestricted(), call.Command, false); err != nil {
				return err
			}
			if err := appendStages(&stages, call.Command, call.Arguments); err != nil {
				return err
			}
			continue
		}

		if err := alias.CheckRestricted(cfg.IsRestricted(), call.Command, def.IsPrivileged()); err != nil {
			return err
		}

		res, err := loader.Expand(def, call, constructorFor(&stages))
		if err != nil {
			return err
		}
		if i == 0 && res.Filter != "" {
			filterExpr = res.Filter
		}
		if i == 0 && res.Group != "" {
			groupName = res.Group
		}
		if res.Quiet {
			quiet = true
		}
	}

	filter, groupMembers, err := resolveTarget(s, filterExpr, groupName, flagName)
	if err != nil {
		return err
	}

	var auditLog *audit.Logger
	if cfg.AuditDir != "" {
		auditLog = audit.NewLogger(audit.NewFileStore(cfg.AuditDir), os.Getenv("USER"))
	}

	invocationID := uuid.NewString()
	ctx := context.Background()
	if auditLog != nil {
		verbKind := ""
		if len(stages) > 0 {
			verbKind = string(stages[0].Verb.Kind)
		}
		if err := auditLog.LogQuerySent(ctx, filterExpr, verbKind, groupName, 0); err != nil {
			log.Warn("fleetctl: audit log query.sent failed", "error", err)
		}
	}

	bus, err := dialController(cfg, log, invocationID)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer bus.Disconnect(250)

	format := controller.FormatPlain
	if flagJSON {
		format = controller.FormatJSON
	}
	printer := controller.NewPrinter(os.Stdout, format, !flagJSON)

	printResponse := printer.OnResponse
	if quiet {
		printResponse = func(controller.ResponseEvent) {}
	}
	var repliedMu sync.Mutex
	replied := make(map[string]bool)
	onResponse := func(ev controller.ResponseEvent) {
		repliedMu.Lock()
		replied[ev.ID] = true
		repliedMu.Unlock()
		printResponse(ev)
	}

	corr := controller.New(bus, s, log, controller.Options{
		Filter:          filter,
		GroupName:       groupName,
		GroupMembers:    groupMembers,
		Stages:          stages,
		WatchdogTimeout: flagTimeout,
		OnResponse:      onResponse,
	})

	start := time.Now()
	success, err := corr.Run()
	if err != nil {
		return err
	}
	repliedMu.Lock()
	repliedCount := len(replied)
	repliedMu.Unlock()
	printer.PrintSummary(success, len(groupMembers), repliedCount)

	if auditLog != nil {
		status := "complete"
		if !success {
			status = "error"
		}
		if err := auditLog.LogStageComplete(ctx, &audit.EventResult{
			Status:         status,
			AgentsExpected: len(groupMembers),
			Duration:       time.Since(start),
		}); err != nil {
			log.Warn("fleetctl: audit log stage.complete failed", "error", err)
		}
	}

	if !success {
		os.Exit(1)
	}
	return nil
}

// constructorFor adapts controller.ConstructVerbs into an
// alias.ConstructFunc that also records each verb's StageSpec (upload
// bytes for a push, the local destination template for a pull) onto
// stages as a side effect, since alias.Expand only sees verbs, not the
// controller-local state a cp/fetch stage additionally carries.
func constructorFor(stages *[]controller.StageSpec) alias.ConstructFunc {
	return func(command string, args []string) ([]verb.Verb, error) {
		verbs, err := controller.ConstructVerbs(command, args)
		if err != nil {
			return nil, err
		}
		if err := appendVerbStages(stages, command, args, verbs); err != nil {
			return nil, err
		}
		return verbs, nil
	}
}

func appendStages(stages *[]controller.StageSpec, command string, args []string) error {
	verbs, err := controller.ConstructVerbs(command, args)
	if err != nil {
		return err
	}
	return appendVerbStages(stages, command, args, verbs)
}

// appendVerbStages turns verbs into StageSpecs, filling in the local
// file bytes a push/push-run stage needs and the destination template a
// pull/run-pull stage needs — ConstructVerbs itself stays ignorant of
// the local filesystem (spec §4.3's cp/fetch ordering guarantee).
func appendVerbStages(stages *[]controller.StageSpec, command string, args []string, verbs []verb.Verb) error {
	specs := make([]controller.StageSpec, len(verbs))
	for i, v := range verbs {
		specs[i] = controller.StageSpec{Verb: v}
	}

	switch command {
	case "push":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("fleetctl: read %s: %w", args[0], err)
		}
		specs[0].UploadBytes = data
	case "pull":
		specs[0].FetchDestTemplate = args[1]
	case "push-run":
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("fleetctl: read %s: %w", args[0], err)
		}
		specs[0].UploadBytes = data
	case "run-pull":
		specs[len(specs)-1].FetchDestTemplate = args[1]
	}

	*stages = append(*stages, specs...)
	return nil
}

func resolveTarget(s *store.Store, filterExpr, groupName, name string) (predicate.Condition, map[string]string, error) {
	if name != "" {
		addr, err := controller.LookupAddr(s, name)
		if err != nil {
			return predicate.Condition{}, nil, err
		}
		return predicate.Equals("addr", addr), nil, nil
	}
	if groupName != "" {
		members := controller.GroupMembers(s, groupName)
		if members == nil {
			return predicate.Condition{}, nil, fmt.Errorf("fleetctl: group %q is not defined", groupName)
		}
		conds := []predicate.Condition{predicate.Elem("groups", groupName), predicate.Equals("rc", "0")}
		if filterExpr != "" {
			conds = append(conds, predicate.Parse(filterExpr))
		}
		return predicate.All(conds...), members, nil
	}
	if filterExpr != "" {
		return predicate.Parse(filterExpr), nil, nil
	}
	return predicate.None(), nil, nil
}

func dialController(cfg *config.Config, log *slog.Logger, invocationID string) (transport.Bus, error) {
	var tlsConfig *tls.Config
	if cfg.TLS.CAFile != "" {
		var err error
		tlsConfig, err = transport.ClientTLSConfig(transport.MTLSConfig{
			CACertFile:     cfg.TLS.CAFile,
			ClientCertFile: cfg.TLS.CertFile,
			ClientKeyFile:  cfg.TLS.KeyFile,
		})
		if err != nil {
			return nil, err
		}
	}
	return transport.NewPahoBus(transport.PahoOptions{
		Broker:      cfg.MQTTAddr,
		ClientID:    "fleetctl-" + invocationID,
		ConnectWait: time.Duration(cfg.MQTTConnectWait) * time.Second,
		TLSConfig:   tlsConfig,
		Logger:      log,
	})
}
