// Command fleetd is the agent daemon: it loads its store, bootstraps its
// identity, subscribes to the query bus, and answers queries until it
// receives SIGINT or SIGTERM or a restart verb exits the process (spec
// §4.4). A message on MOI/quit disconnects the agent from the bus; the
// process itself keeps running until one of those signals arrives.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/freitascorp/fleetmq/pkg/agent"
	"github.com/freitascorp/fleetmq/pkg/config"
	"github.com/freitascorp/fleetmq/pkg/logger"
	"github.com/freitascorp/fleetmq/pkg/observability"
	"github.com/freitascorp/fleetmq/pkg/store"
	"github.com/freitascorp/fleetmq/pkg/transport"
)

func main() {
	configPath := flag.String("config", "/etc/fleetmq/fleetd.yaml", "path to the agent's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetd:", err)
		os.Exit(1)
	}

	log, closer := logger.New(logger.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if closer != nil {
		defer closer.Close()
	}

	backend, err := store.NewBackend(store.BackendConfig{
		Backend:  cfg.StoreBackend,
		FilePath: cfg.Store,
	}, "agent")
	if err != nil {
		log.Error("fleetd: store backend", "error", err)
		os.Exit(1)
	}
	s, err := store.Load(backend)
	if err != nil {
		log.Error("fleetd: store load", "error", err)
		os.Exit(1)
	}

	if err := agent.Bootstrap(s, agent.BootstrapConfig{
		Addr:      "",
		Name:      "",
		Home:      cfg.Home,
		Interface: cfg.Interface,
		Bin:       cfg.Bin,
		Tmp:       cfg.Tmp,
		Version:   "fleetd/1",
	}); err != nil {
		log.Error("fleetd: bootstrap", "error", err)
		os.Exit(1)
	}

	addrVal, _ := s.Get("addr")
	addr := store.Stringify(addrVal)

	executor := agent.NewExecutor(s, agent.Config{Home: cfg.Home, Destinations: cfg.Destinations}, log)

	connectWait := time.Duration(cfg.MQTTConnectWait) * time.Second
	bus, err := dial(cfg, addr, connectWait)
	if err != nil {
		log.Error("fleetd: connect", "error", err)
		os.Exit(1)
	}

	daemon := agent.NewDaemon(bus, executor, s, log)
	if err := daemon.Start(); err != nil {
		log.Error("fleetd: start", "error", err)
		os.Exit(1)
	}

	keepalive := agent.NewKeepalive(bus, addr, agent.KeepaliveConfig{
		Interval:  time.Duration(cfg.AliveInterval) * time.Second,
		Reconnect: cfg.AliveAction == "reconnect",
	}, log, func() error {
		newBus, err := dial(cfg, addr, connectWait)
		if err != nil {
			return err
		}
		bus.Disconnect(250)
		bus = newBus
		daemon = agent.NewDaemon(bus, executor, s, log)
		return daemon.Start()
	})
	go keepalive.Run()
	defer keepalive.Stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := observability.Serve(cfg.MetricsAddr); err != nil {
				log.Warn("fleetd: metrics server stopped", "error", err)
			}
		}()
	}

	log.Info("fleetd: ready", "addr", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("fleetd: shutting down")
	bus.Disconnect(250)
}

func dial(cfg *config.Config, addr string, connectWait time.Duration) (transport.Bus, error) {
	var tlsConfig *tls.Config
	if cfg.TLS.CAFile != "" {
		var err error
		tlsConfig, err = transport.ClientTLSConfig(transport.MTLSConfig{
			CACertFile:     cfg.TLS.CAFile,
			ClientCertFile: cfg.TLS.CertFile,
			ClientKeyFile:  cfg.TLS.KeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("tls config: %w", err)
		}
	}

	return transport.NewPahoBus(transport.PahoOptions{
		Broker:      cfg.MQTTAddr,
		ClientID:    "fleetd-" + addr + "-" + uuid.NewString(),
		ConnectWait: connectWait,
		TLSConfig:   tlsConfig,
	})
}
