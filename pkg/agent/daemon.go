package agent

import (
	"fmt"
	"log/slog"

	"github.com/freitascorp/fleetmq/pkg/envelope"
	"github.com/freitascorp/fleetmq/pkg/store"
	"github.com/freitascorp/fleetmq/pkg/transport"
)

// Daemon wires an Executor to a transport.Bus: it subscribes to the
// broadcast and narrowcast query topics plus the quit topic, routes
// incoming envelopes to the executor, and publishes the results on the
// matching MOI/result/* topic (spec §4.4, §6).
type Daemon struct {
	bus      transport.Bus
	executor *Executor
	store    *store.Store
	logger   *slog.Logger
	addr     string
}

// NewDaemon builds a Daemon. The executor's OnLaunchComplete is wired
// here to publish on MOI/result/process, the direct-response delivery
// path for a launch with no job name.
func NewDaemon(bus transport.Bus, executor *Executor, s *store.Store, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	addr, _ := s.Get("addr")
	d := &Daemon{
		bus:      bus,
		executor: executor,
		store:    s,
		logger:   logger,
		addr:     store.Stringify(addr),
	}
	executor.OnLaunchComplete = d.publishLaunchResult
	return d
}

// Start subscribes to every topic the agent listens on. It does not
// block; the bus delivers messages on its own goroutines.
func (d *Daemon) Start() error {
	if err := d.bus.Subscribe(transport.TopicQuery, d.handleQueryMessage); err != nil {
		return fmt.Errorf("daemon: subscribe query: %w", err)
	}
	if err := d.bus.Subscribe(transport.TopicQueryFor(d.addr), d.handleQueryMessage); err != nil {
		return fmt.Errorf("daemon: subscribe narrowcast query: %w", err)
	}
	if err := d.bus.Subscribe(transport.TopicQuit, d.handleQuitMessage); err != nil {
		return fmt.Errorf("daemon: subscribe quit: %w", err)
	}
	return nil
}

func (d *Daemon) handleQueryMessage(_ string, payload []byte) {
	q, err := envelope.DecodeQuery(payload)
	if err != nil {
		d.logger.Error("malformed query", "error", err)
		return
	}

	resp, matched := d.executor.HandleQuery(q, d.addr)
	if !matched {
		return
	}
	if resp.IsError() {
		d.logger.Error("query response", "seq", q.Seq, "error", resp.Error)
	} else {
		d.logger.Info("query response", "seq", q.Seq)
	}

	if buf := d.executor.TakePendingBuffer(); buf != nil {
		name, _ := d.store.Get("name")
		topic := transport.TopicFetch(q.Seq, d.addr, store.Stringify(name))
		if err := d.bus.Publish(topic, 1, false, buf); err != nil {
			d.logger.Error("publish fetch payload failed", "topic", topic, "error", err)
		}
		return
	}

	raw, err := envelope.EncodeResponse(resp)
	if err != nil {
		d.logger.Error("encode response failed", "error", err)
		return
	}
	if err := d.bus.Publish(transport.TopicResultQuery, 1, false, raw); err != nil {
		d.logger.Error("publish query response failed", "error", err)
	}

	if d.executor.HasPendingFile() {
		topic := transport.TopicFile(q.Seq)
		if err := d.bus.Subscribe(topic, d.fileHandler(q.Seq)); err != nil {
			d.logger.Error("subscribe pending file topic failed", "topic", topic, "error", err)
		}
	}
}

// fileHandler returns the retained-file-topic handler for the cp verb's
// second phase, bound to the sequence number that requested it.
func (d *Daemon) fileHandler(seq int) func(string, []byte) {
	return func(topic string, payload []byte) {
		ok, err := d.executor.HandleFileBytes(payload)

		resp := envelope.Response{ID: d.addr, Seq: seq, Ok: ok}
		if err != nil {
			resp = envelope.Response{ID: d.addr, Seq: seq, Error: err.Error()}
		}

		raw, encErr := envelope.EncodeResponse(resp)
		if encErr != nil {
			d.logger.Error("encode file response failed", "error", encErr)
		} else if pubErr := d.bus.Publish(transport.TopicResultFile, 1, false, raw); pubErr != nil {
			d.logger.Error("publish file response failed", "error", pubErr)
		}

		if unsubErr := d.bus.Unsubscribe(topic); unsubErr != nil {
			d.logger.Error("unsubscribe file topic failed", "topic", topic, "error", unsubErr)
		}
	}
}

func (d *Daemon) handleQuitMessage(string, []byte) {
	d.bus.Disconnect(250)
}

// publishLaunchResult is the async launch direct-response delivery path
// (spec §4.4): a launch with no job name answers MOI/result/process with
// its shell result once the command finishes.
func (d *Daemon) publishLaunchResult(result ShellResult) {
	resp := envelope.Response{ID: d.addr, Ok: result}
	raw, err := envelope.EncodeResponse(resp)
	if err != nil {
		d.logger.Error("encode launch result failed", "error", err)
		return
	}
	if err := d.bus.Publish(transport.TopicResultProcess, 1, false, raw); err != nil {
		d.logger.Error("publish launch result failed", "error", err)
	}
}
