package controller

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/freitascorp/fleetmq/pkg/envelope"
	"github.com/freitascorp/fleetmq/pkg/observability"
	"github.com/freitascorp/fleetmq/pkg/predicate"
	"github.com/freitascorp/fleetmq/pkg/store"
	"github.com/freitascorp/fleetmq/pkg/transport"
	"github.com/freitascorp/fleetmq/pkg/verb"
	"github.com/freitascorp/fleetmq/pkg/watchdog"
)

// StageSpec is one pipeline stage: the verb to send plus controller-local
// state a handful of verbs need beyond the wire payload.
type StageSpec struct {
	Verb verb.Verb

	// UploadBytes holds the local file contents for a cp stage; they are
	// published on the retained MOI/file/{seq} topic as soon as the first
	// success response for this stage is observed (spec §5 ordering
	// guarantee).
	UploadBytes []byte

	// FetchDestTemplate is the local path template (with %a/%n/%t
	// placeholders) a fetch stage writes arriving payloads to.
	FetchDestTemplate string
}

// ResponseEvent is handed to Options.OnResponse for every response this
// correlator accepts, so a caller can format output without the
// correlator knowing about plain-text vs JSON rendering.
type ResponseEvent struct {
	Seq     int
	ID      string
	Name    string
	Verb    verb.Verb
	Resp    envelope.Response
	Success bool
}

// Options configures one controller invocation.
type Options struct {
	Filter       predicate.Condition
	GroupName    string
	GroupMembers map[string]string // nil if no group was specified
	Stages       []StageSpec

	// WatchdogTimeout overrides the default per-stage inactivity timeout;
	// a wait stage always uses watchdog.LaunchTimeout regardless.
	WatchdogTimeout time.Duration

	OnResponse func(ResponseEvent)
}

// Correlator runs a controller's pipeline of stages against the bus,
// detecting each stage's completion and reconciling the final outcome
// (spec §4.5).
type Correlator struct {
	bus    transport.Bus
	store  *store.Store
	logger *slog.Logger
	opts   Options

	mu          sync.Mutex
	seq         int
	responses   map[string]envelope.Response
	groupMember map[string]string // collected by a `group` stage
	fileTopic   string
	wd          *watchdog.Watchdog
	closeDone   func()
}

// New builds a Correlator for one pipeline run.
func New(bus transport.Bus, s *store.Store, logger *slog.Logger, opts Options) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		bus:         bus,
		store:       s,
		logger:      logger,
		opts:        opts,
		responses:   make(map[string]envelope.Response),
		groupMember: make(map[string]string),
	}
}

// Run subscribes to the result topics, advances every stage in order,
// and returns the pipeline's overall success.
func (c *Correlator) Run() (bool, error) {
	unsub, err := c.subscribe()
	if err != nil {
		return false, err
	}
	defer unsub()

	overall := true
	for c.seq = 0; c.seq < len(c.opts.Stages); c.seq++ {
		spec := c.opts.Stages[c.seq]
		ok, err := c.runStage(spec)
		if err != nil {
			return false, err
		}
		if !ok {
			overall = false
		}
	}
	return overall, nil
}

func (c *Correlator) subscribe() (func(), error) {
	topics := []string{
		transport.TopicResultQuery,
		transport.TopicResultFile,
		transport.TopicResultProcess,
		transport.TopicResultGroup,
	}
	for _, t := range topics {
		if err := c.bus.Subscribe(t, c.handleResultMessage); err != nil {
			return nil, fmt.Errorf("controller: subscribe %s: %w", t, err)
		}
	}
	fetchWildcard := "MOI/fetch/+/+/+"
	if err := c.bus.Subscribe(fetchWildcard, c.handleFetchMessage); err != nil {
		return nil, fmt.Errorf("controller: subscribe %s: %w", fetchWildcard, err)
	}

	return func() {
		for _, t := range topics {
			c.bus.Unsubscribe(t)
		}
		c.bus.Unsubscribe(fetchWildcard)
	}, nil
}

func (c *Correlator) watchdogTimeoutFor(v verb.Verb) time.Duration {
	if v.IsWait() {
		return watchdog.LaunchTimeout
	}
	if c.opts.WatchdogTimeout > 0 {
		return c.opts.WatchdogTimeout
	}
	return watchdog.DefaultTimeout
}

func (c *Correlator) runStage(spec StageSpec) (bool, error) {
	start := time.Now()

	c.mu.Lock()
	c.responses = make(map[string]envelope.Response)
	c.groupMember = make(map[string]string)
	c.fileTopic = ""
	c.mu.Unlock()

	topic := transport.TopicQuery
	if addr, byAddr, ok := c.opts.Filter.UniqueTarget(); ok && byAddr {
		topic = transport.TopicQueryFor(addr)
	}

	q := envelope.Query{Seq: c.seq, Which: c.opts.Filter, What: spec.Verb, Group: c.opts.GroupName}
	raw, err := envelope.EncodeQuery(q)
	if err != nil {
		return false, fmt.Errorf("controller: encode stage %d: %w", c.seq, err)
	}

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	c.mu.Lock()
	c.closeDone = closeDone
	c.mu.Unlock()

	wd := watchdog.New(c.watchdogTimeoutFor(spec.Verb))
	c.mu.Lock()
	c.wd = wd
	c.mu.Unlock()
	go wd.Run(func() {
		observability.WatchdogFires.Inc()
		closeDone()
	})
	defer wd.Stop()

	if err := c.bus.Publish(topic, 1, false, raw); err != nil {
		return false, fmt.Errorf("controller: publish stage %d: %w", c.seq, err)
	}
	observability.QueriesSent.Inc()

	<-done

	observability.StageDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	fileTopic := c.fileTopic
	c.mu.Unlock()
	if fileTopic != "" {
		c.bus.Publish(fileTopic, 1, true, nil)
	}

	return c.reconcileStage(spec), nil
}

func (c *Correlator) handleResultMessage(_ string, payload []byte) {
	resp, err := envelope.DecodeResponse(payload)
	if err != nil {
		c.logger.Error("malformed response", "error", err)
		return
	}

	c.mu.Lock()
	seq := c.seq
	wd := c.wd
	if resp.Seq != seq {
		c.mu.Unlock()
		c.logger.Warn("response for stale sequence ignored", "got", resp.Seq, "want", seq)
		return
	}
	if wd != nil {
		wd.Update()
	}
	c.mu.Unlock()

	v := c.currentVerb()
	success := c.classifyResponse(v, resp)

	c.mu.Lock()
	c.responses[resp.ID] = resp
	var uploadBytes []byte
	var fileTopic string
	if v.Kind == verb.KindCopy && c.fileTopic == "" && !resp.IsError() {
		uploadBytes = c.opts.Stages[seq].UploadBytes
		fileTopic = transport.TopicFile(seq)
		c.fileTopic = fileTopic
	}
	replied := len(c.responses)
	c.mu.Unlock()

	// The file content is published only after the first success
	// response for a cp stage has been observed (spec §5 ordering
	// guarantee); retained semantics still cover a late-subscribing agent.
	if uploadBytes != nil {
		c.bus.Publish(fileTopic, 1, true, uploadBytes)
	}

	if v.Kind == verb.KindChain && !resp.IsError() {
		c.collectGroupMembers(resp)
	}

	name := LookupName(c.store, resp.ID)
	observability.ResponsesReceived.WithLabelValues(string(v.Kind)).Inc()
	if c.opts.OnResponse != nil {
		c.opts.OnResponse(ResponseEvent{Seq: seq, ID: resp.ID, Name: name, Verb: v, Resp: resp, Success: success})
	}

	c.maybeCloseOnGroupSize(replied)
}

func (c *Correlator) handleFetchMessage(topic string, payload []byte) {
	parts := strings.Split(strings.TrimPrefix(topic, "MOI/fetch/"), "/")
	if len(parts) != 3 {
		return
	}
	seqStr, addr, name := parts[0], parts[1], parts[2]

	c.mu.Lock()
	seq := c.seq
	wd := c.wd
	c.mu.Unlock()
	if fmt.Sprintf("%d", seq) != seqStr {
		return
	}
	if wd != nil {
		wd.Update()
	}

	dest := ""
	if seq < len(c.opts.Stages) {
		dest = replacePercentDestination(c.opts.Stages[seq].FetchDestTemplate, addr, name)
	}

	resp := envelope.Response{ID: addr, Seq: seq, Ok: dest}
	c.mu.Lock()
	c.responses[addr] = resp
	replied := len(c.responses)
	c.mu.Unlock()

	if c.opts.OnResponse != nil {
		c.opts.OnResponse(ResponseEvent{Seq: seq, ID: addr, Name: name, Verb: c.currentVerb(), Resp: resp, Success: true})
	}

	c.maybeCloseOnGroupSize(replied)
}

func (c *Correlator) currentVerb() verb.Verb {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq < 0 || c.seq >= len(c.opts.Stages) {
		return verb.Verb{}
	}
	return c.opts.Stages[c.seq].Verb
}

// classifyResponse determines per-device success: a plain error response
// always fails; a run/launch result additionally fails on nonzero exit
// code (spec §4.5 "aggregate success is the AND of per-device successes
// and AND of run-result code == 0").
func (c *Correlator) classifyResponse(v verb.Verb, resp envelope.Response) bool {
	if resp.IsError() {
		return false
	}
	if v.Kind != verb.KindRun && v.Kind != verb.KindLaunch {
		return true
	}
	m, ok := resp.Ok.(map[string]any)
	if !ok {
		return true
	}
	code, ok := m["code"].(float64)
	if !ok {
		return true
	}
	return code == 0
}

func (c *Correlator) collectGroupMembers(resp envelope.Response) {
	arr, ok := resp.Ok.([]any)
	if !ok || len(arr) == 0 {
		return
	}
	getResult, ok := arr[0].([]any)
	if !ok || len(getResult) < 2 {
		return
	}
	addr, _ := getResult[0].(string)
	name, _ := getResult[1].(string)
	if addr == "" {
		return
	}
	c.mu.Lock()
	c.groupMember[addr] = name
	c.mu.Unlock()
}

func (c *Correlator) maybeCloseOnGroupSize(replied int) {
	c.mu.Lock()
	groupKnown := c.opts.GroupMembers != nil
	target := len(c.opts.GroupMembers)
	closeDone := c.closeDone
	c.mu.Unlock()

	if groupKnown && replied >= target && closeDone != nil {
		closeDone()
	}
}

// reconcileStage computes the stage's aggregate success and, for a group
// stage, persists newly observed membership (spec §4.5 Reconciliation).
func (c *Correlator) reconcileStage(spec StageSpec) bool {
	c.mu.Lock()
	responses := c.responses
	groupMembers := c.groupMember
	c.mu.Unlock()

	if spec.Verb.Kind == verb.KindChain && c.opts.GroupName != "" && len(groupMembers) > 0 {
		if err := PersistGroup(c.store, c.opts.GroupName, groupMembers); err != nil {
			c.logger.Error("persist group failed", "group", c.opts.GroupName, "error", err)
		}
	}

	if c.opts.GroupMembers != nil {
		ok := true
		for addr, resp := range responses {
			if _, known := c.opts.GroupMembers[addr]; !known {
				c.logger.Warn("response from device outside group", "addr", addr, "group", c.opts.GroupName)
			}
			if !c.classifyResponse(spec.Verb, resp) {
				ok = false
			}
		}
		for addr, name := range c.opts.GroupMembers {
			if _, replied := responses[addr]; !replied {
				c.logger.Error("device failed to respond", "addr", addr, "name", name)
				ok = false
			}
		}
		return ok
	}

	for _, resp := range responses {
		if !c.classifyResponse(spec.Verb, resp) {
			return false
		}
	}
	return true
}
