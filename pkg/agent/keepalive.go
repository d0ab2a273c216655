package agent

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/freitascorp/fleetmq/pkg/observability"
	"github.com/freitascorp/fleetmq/pkg/resilience"
	"github.com/freitascorp/fleetmq/pkg/transport"
)

// KeepaliveConfig configures the MOI/alive heartbeat loop (spec §4.4,
// §6 alive_interval/alive_action).
type KeepaliveConfig struct {
	Interval time.Duration
	// Reconnect selects the alive_action == "reconnect" behavior; when
	// false three consecutive publish failures exit the process, matching
	// the original daemon's "process::exit(1)" fallback.
	Reconnect bool
}

// Keepalive publishes an {"addr": ...} message on MOI/alive every
// Interval. Publish failures are routed through a circuit breaker with
// MaxFailures: 3, so three consecutive failures trip the breaker's open
// transition instead of a hand-rolled counter.
type Keepalive struct {
	bus     transport.Bus
	payload []byte
	cfg     KeepaliveConfig
	logger  *slog.Logger
	breaker *resilience.CircuitBreaker

	onReconnect func() error
	stopCh      chan struct{}
}

// NewKeepalive builds a Keepalive for addr. onReconnect is invoked when
// the breaker opens and Reconnect is set; it should re-establish the bus
// connection.
func NewKeepalive(bus transport.Bus, addr string, cfg KeepaliveConfig, logger *slog.Logger, onReconnect func() error) *Keepalive {
	if logger == nil {
		logger = slog.Default()
	}
	payload, _ := json.Marshal(map[string]string{"addr": addr})

	k := &Keepalive{
		bus:         bus,
		payload:     payload,
		cfg:         cfg,
		logger:      logger,
		onReconnect: onReconnect,
		stopCh:      make(chan struct{}),
	}
	k.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "keepalive",
		MaxFailures:   3,
		ResetTimeout:  cfg.Interval,
		OnStateChange: k.onStateChange,
	})
	return k
}

// Run publishes on the configured interval until Stop is called. It
// blocks, so callers run it in its own goroutine.
func (k *Keepalive) Run() {
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			if err := k.breaker.Execute(func() error {
				return k.bus.Publish(transport.TopicAlive, 1, false, k.payload)
			}); err != nil {
				observability.HeartbeatFailures.Inc()
			}
		}
	}
}

// Stop ends the Run loop.
func (k *Keepalive) Stop() {
	close(k.stopCh)
}

func (k *Keepalive) onStateChange(name string, from, to resilience.CircuitState) {
	if to != resilience.CircuitOpen {
		return
	}
	k.logger.Error("three tries out, reconnecting", "keepalive", name)
	if !k.cfg.Reconnect {
		os.Exit(1)
	}
	if k.onReconnect == nil {
		return
	}
	if err := k.onReconnect(); err != nil {
		k.logger.Error("three tries out: reconnect failed", "error", err)
		os.Exit(1)
	}
}
