// Package agent implements the agent-side evaluator and executor (spec
// §4.4): predicate matching, verb dispatch, the two-phase cp file
// receive, async launch jobs, the rc result-code convention, and the
// keepalive/reconnect loop.
package agent

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/freitascorp/fleetmq/pkg/envelope"
	"github.com/freitascorp/fleetmq/pkg/observability"
	"github.com/freitascorp/fleetmq/pkg/store"
	"github.com/freitascorp/fleetmq/pkg/verb"
)

// pendingFile is the transient state held between a cp verb's planning
// phase and the arrival of bytes on the retained file topic.
type pendingFile struct {
	filename string
	dest     string
	perms    *uint32
	hash     string
}

// Executor evaluates queries against the local store and dispatches
// verbs. It is safe for concurrent use: mu guards the pending cp file,
// the staged fetch buffer and the rc clear timer, while store reads,
// mutations and flushes rely on the store's own lock, which each call
// takes separately.
type Executor struct {
	mu sync.Mutex

	store        *store.Store
	plugins      *Registry
	logger       *slog.Logger
	home         string
	destinations map[string]string

	pending       *pendingFile
	pendingBuffer []byte

	rcClear *time.Timer

	// OnLaunchComplete, when set, receives the result of an async launch
	// that had no job name — spec's "direct response" delivery path, for
	// the message loop to publish on MOI/result/process.
	OnLaunchComplete func(ShellResult)
}

// Config carries the pieces of the agent's runtime configuration the
// executor needs — the path-substitution inputs from spec §4.3.
type Config struct {
	Home         string
	Destinations map[string]string
}

// NewExecutor builds an Executor over an already-loaded store.
func NewExecutor(s *store.Store, cfg Config, logger *slog.Logger, extraPlugins ...Plugin) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:        s,
		plugins:      NewRegistry(extraPlugins...),
		logger:       logger,
		home:         cfg.Home,
		destinations: cfg.Destinations,
	}
}

// HandleQuery is the agent's per-message entry point (spec §4.4 steps
// 1-3): evaluate the predicate and, if it matches, dispatch the verb.
// A non-matching predicate yields matched=false and no response should
// be published at all.
func (e *Executor) HandleQuery(q envelope.Query, addr string) (resp envelope.Response, matched bool) {
	if !q.Which.Eval(e.store) {
		return envelope.Response{}, false
	}
	observability.QueriesMatched.Inc()

	ok, err := e.Dispatch(q.What)
	if err != nil {
		return envelope.Response{ID: addr, Seq: q.Seq, Error: err.Error()}, true
	}
	return envelope.Response{ID: addr, Seq: q.Seq, Ok: ok}, true
}

// Dispatch executes a single verb against the store, synchronously for
// every verb except launch (which answers true immediately and
// delivers its real result later) and spawn (fire-and-forget).
func (e *Executor) Dispatch(v verb.Verb) (any, error) {
	observability.VerbsDispatched.WithLabelValues(string(v.Kind)).Inc()
	switch v.Kind {
	case verb.KindGet:
		return e.dispatchGet(v.Keys), nil
	case verb.KindSet:
		return e.dispatchSet(v.KV)
	case verb.KindSetArray:
		return e.dispatchArrayMutate(v.KV, false)
	case verb.KindRemoveArray:
		return e.dispatchArrayMutate(v.KV, true)
	case verb.KindRun:
		return e.dispatchRun(v.Run)
	case verb.KindLaunch:
		return e.dispatchLaunch(v.Run)
	case verb.KindSpawn:
		return e.dispatchSpawn(v.Run)
	case verb.KindCopy:
		return e.dispatchCopy(v.Copy)
	case verb.KindFetch:
		return e.dispatchFetch(v.Fetch)
	case verb.KindRestart:
		return e.dispatchRestart(v.ExitCode)
	case verb.KindChain:
		return e.dispatchChain(v.Chain)
	case verb.KindInvoke:
		return e.dispatchInvoke(v.InvokeName, v.InvokeArgs)
	case verb.KindWait:
		// Controller-local pipeline marker; on the agent it is a no-op.
		// The original daemon treated a literal wire `null` payload as a
		// malformed query ("query must have 'what'"); every matching
		// agent would answer error on a wait stage. Answering true here
		// is a deliberate correction, not a faithful port of that bug.
		return true, nil
	default:
		return nil, fmt.Errorf("unknown verb kind %q", v.Kind)
	}
}

func (e *Executor) dispatchGet(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := e.plugins.Var(k); ok {
			out[i] = v
			continue
		}
		out[i] = e.store.GetOr(k, nil)
	}
	return out
}

func (e *Executor) dispatchSet(kv map[string]any) (any, error) {
	for k, v := range kv {
		e.store.Set(k, v)
	}
	if err := e.store.Flush(); err != nil {
		return nil, fmt.Errorf("set: flush: %w", err)
	}
	return true, nil
}

func (e *Executor) dispatchArrayMutate(kv map[string]any, remove bool) (any, error) {
	for k, v := range kv {
		if err := e.store.InsertArray(k, v, remove); err != nil {
			return nil, fmt.Errorf("array mutate %q: %w", k, err)
		}
	}
	if err := e.store.Flush(); err != nil {
		return nil, fmt.Errorf("array mutate: flush: %w", err)
	}
	return true, nil
}

func (e *Executor) resolveRunCommand(rc verb.RunCommand) (cmd, pwd string) {
	cmd = replaceHomeTilde(rc.Cmd, e.home)
	pwdArg := rc.Pwd
	if pwdArg == "" {
		pwdArg = e.home
	}
	pwd = massageDestinationPath(e.home, e.destinations, pwdArg)
	return cmd, pwd
}

func (e *Executor) dispatchRun(rc verb.RunCommand) (any, error) {
	cmd, pwd := e.resolveRunCommand(rc)
	if fi, err := os.Stat(pwd); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("run: working directory does not exist: %s", pwd)
	}
	result := runShellCommand(context.Background(), cmd, pwd)
	e.handleResultCode(result.Code)
	return result, nil
}

func (e *Executor) dispatchSpawn(rc verb.RunCommand) (any, error) {
	cmd, pwd := e.resolveRunCommand(rc)
	if err := spawnShellCommand(cmd, pwd); err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}
	return true, nil
}

func (e *Executor) dispatchLaunch(rc verb.RunCommand) (any, error) {
	cmd, pwd := e.resolveRunCommand(rc)
	if fi, err := os.Stat(pwd); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("launch: working directory does not exist: %s", pwd)
	}

	job := rc.Job
	go func() {
		result := runShellCommand(context.Background(), cmd, pwd)
		if job == "" {
			if e.OnLaunchComplete != nil {
				e.OnLaunchComplete(result)
			}
		} else {
			e.store.Set(job, map[string]any{
				"code":   float64(result.Code),
				"stdout": result.Stdout,
				"stderr": result.Stderr,
			})
			if err := e.store.Flush(); err != nil {
				e.logger.Error("launch: flush job result failed", "job", job, "error", err)
			}
		}
		e.handleResultCode(result.Code)
	}()

	return true, nil
}

func (e *Executor) dispatchCopy(c verb.CopyFile) (any, error) {
	destDir := massageDestinationPath(e.home, e.destinations, c.Dest)
	if fi, err := os.Stat(destDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("cp: destination directory does not exist: %s", destDir)
	}

	e.mu.Lock()
	e.pending = &pendingFile{
		filename: c.Filename,
		dest:     destDir + string(os.PathSeparator) + c.Filename,
		perms:    c.Perms,
		hash:     c.Hash,
	}
	e.mu.Unlock()

	return true, nil
}

// HandleFileBytes completes the cp verb's second phase: the retained
// payload has arrived on MOI/file/{seq}. It writes the file, verifies
// the MD5 if one was supplied, and clears the pending state regardless
// of outcome.
func (e *Executor) HandleFileBytes(payload []byte) (bool, error) {
	e.mu.Lock()
	p := e.pending
	e.pending = nil
	e.mu.Unlock()

	if p == nil {
		return false, nil
	}

	mode := os.FileMode(0644)
	if p.perms != nil {
		mode = os.FileMode(*p.perms)
	}
	if err := os.WriteFile(p.dest, payload, mode); err != nil {
		return false, fmt.Errorf("cp: write %s: %w", p.dest, err)
	}

	if p.hash != "" {
		sum := md5.Sum(payload)
		got := hex.EncodeToString(sum[:])
		if got != p.hash {
			return false, fmt.Errorf("cp: received hash %s does not match expected %s", got, p.hash)
		}
	}
	return true, nil
}

// HasPendingFile reports whether a cp verb is awaiting bytes, so the
// message loop knows whether to subscribe to the file topic.
func (e *Executor) HasPendingFile() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

func (e *Executor) dispatchFetch(f verb.FetchFile) (any, error) {
	source := massageDestinationPath(e.home, e.destinations, f.Source)
	if !filepath.IsAbs(source) {
		source = filepath.Join(e.home, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s: %w", source, err)
	}
	e.mu.Lock()
	e.pendingBuffer = data
	e.mu.Unlock()
	return true, nil
}

// TakePendingBuffer returns and clears the staged fetch bytes, or nil if
// none are pending.
func (e *Executor) TakePendingBuffer() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.pendingBuffer
	e.pendingBuffer = nil
	return buf
}

func (e *Executor) dispatchRestart(code int) (any, error) {
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Exit(code)
	}()
	return true, nil
}

func (e *Executor) dispatchChain(verbs []verb.Verb) (any, error) {
	results := make([]any, 0, len(verbs))
	for _, sub := range verbs {
		res, err := e.Dispatch(sub)
		if err != nil {
			return nil, fmt.Errorf("chain: %w", err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Executor) dispatchInvoke(name string, args []string) (any, error) {
	result, err, ok := e.plugins.Command(name, args)
	if !ok {
		return nil, fmt.Errorf("unknown command %s", name)
	}
	return result, err
}

// handleResultCode implements the rc convention (spec §4.4): a nonzero
// exit writes rc into the store immediately and schedules it back to 0
// after a short delay, so a pipelined stage filtering on rc=0 sees the
// failure before it's cleared.
func (e *Executor) handleResultCode(code int) {
	if code == 0 {
		return
	}
	e.store.Set("rc", float64(code))
	if err := e.store.Flush(); err != nil {
		e.logger.Error("handleResultCode: flush failed", "error", err)
	}

	e.mu.Lock()
	if e.rcClear != nil {
		e.rcClear.Stop()
	}
	e.rcClear = time.AfterFunc(time.Second, func() {
		e.store.Set("rc", float64(0))
		if err := e.store.Flush(); err != nil {
			e.logger.Error("handleResultCode: clear flush failed", "error", err)
		}
	})
	e.mu.Unlock()
}

func replaceHomeTilde(cmd, home string) string {
	out := make([]byte, 0, len(cmd))
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == '~' {
			out = append(out, home...)
		} else {
			out = append(out, cmd[i])
		}
	}
	return string(out)
}
