// Package audit provides an immutable, structured log of controller
// activity: every query sent, the responses it gathered, and the
// watchdog/group outcome that closed each stage. Events are append-only
// and can be exported as JSON for downstream ingestion.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	EventQuerySent      EventType = "query.sent"
	EventStageComplete  EventType = "stage.complete"
	EventWatchdogFired  EventType = "watchdog.fired"
	EventVerbDispatched EventType = "verb.dispatched"
	EventFileTransfer   EventType = "file.transfer"
	EventHeartbeatFail  EventType = "heartbeat.fail"
	EventAliasRun       EventType = "alias.run"
)

// Event is a single immutable audit record.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Type      EventType      `json:"type"`
	User      string         `json:"user"`
	Action    string         `json:"action"`
	Target    *EventTarget   `json:"target,omitempty"`
	Result    *EventResult   `json:"result,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// EventTarget describes which agents a query/stage was aimed at.
type EventTarget struct {
	Filter string `json:"filter,omitempty"`
	Group  string `json:"group,omitempty"`
	Verb   string `json:"verb,omitempty"`
}

// EventResult captures the outcome of a stage.
type EventResult struct {
	Status        string        `json:"status"` // "complete", "watchdog", "error"
	AgentsExpected int          `json:"agents_expected,omitempty"`
	AgentsReplied  int          `json:"agents_replied,omitempty"`
	AgentsFailed   int          `json:"agents_failed,omitempty"`
	Duration       time.Duration `json:"duration_ns,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// QueryOptions filters audit log queries.
type QueryOptions struct {
	User  string
	Type  EventType
	Since time.Time
	Until time.Time
	Limit int
}

// Store is the persistence interface for the audit log.
type Store interface {
	// Append writes an event to the audit log. Events are immutable once written.
	Append(ctx context.Context, event *Event) error

	// Query retrieves events matching the given filters.
	Query(ctx context.Context, opts QueryOptions) ([]*Event, error)

	// Export returns all events since the given time.
	Export(ctx context.Context, since time.Time) ([]*Event, error)
}

// ------------------------------------------------------------------
// File-based audit store (append-only JSONL)
// ------------------------------------------------------------------

// FileStore is an append-only file-based audit store using JSON Lines
// format. Each line is a complete JSON event; the file is never
// modified, only appended to.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-based audit store at the given directory.
func NewFileStore(dir string) *FileStore {
	os.MkdirAll(dir, 0o700)
	return &FileStore{dir: dir}
}

func (s *FileStore) logFile() string {
	return filepath.Join(s.dir, "audit.jsonl")
}

// Append writes an event to the audit log.
func (s *FileStore) Append(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.logFile(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}

	return nil
}

// Query reads events matching the given filters.
func (s *FileStore) Query(ctx context.Context, opts QueryOptions) ([]*Event, error) {
	all, err := s.readAll()
	if err != nil {
		return nil, err
	}

	var results []*Event
	for _, e := range all {
		if opts.User != "" && e.User != opts.User {
			continue
		}
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		if !opts.Since.IsZero() && e.Timestamp.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && e.Timestamp.After(opts.Until) {
			continue
		}
		results = append(results, e)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}

	return results, nil
}

// Export returns all events since the given time.
func (s *FileStore) Export(ctx context.Context, since time.Time) ([]*Event, error) {
	return s.Query(ctx, QueryOptions{Since: since})
}

func (s *FileStore) readAll() ([]*Event, error) {
	data, err := os.ReadFile(s.logFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var events []*Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed lines
		}
		events = append(events, &e)
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := range data {
		if data[i] == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// ------------------------------------------------------------------
// Logger is a convenience wrapper for emitting audit events
// ------------------------------------------------------------------

// Logger provides helper methods for the controller's audit points.
type Logger struct {
	store Store
	user  string
}

// NewLogger creates an audit logger for the given operator.
func NewLogger(store Store, user string) *Logger {
	return &Logger{store: store, user: user}
}

// LogQuerySent records a query dispatched to the bus.
func (l *Logger) LogQuerySent(ctx context.Context, filter, verb, group string, seq int) error {
	return l.store.Append(ctx, &Event{
		Type:   EventQuerySent,
		User:   l.user,
		Action: "query.sent",
		Target: &EventTarget{Filter: filter, Verb: verb, Group: group},
		Metadata: map[string]any{
			"seq": seq,
		},
	})
}

// LogStageComplete records how a pipeline stage closed: by full group
// reconciliation or by watchdog timeout.
func (l *Logger) LogStageComplete(ctx context.Context, result *EventResult) error {
	return l.store.Append(ctx, &Event{
		Type:   EventStageComplete,
		User:   l.user,
		Action: "stage.complete",
		Result: result,
	})
}

// LogWatchdogFired records a stage closed early by watchdog inactivity.
func (l *Logger) LogWatchdogFired(ctx context.Context, seq int, agentsReplied int) error {
	return l.store.Append(ctx, &Event{
		Type:   EventWatchdogFired,
		User:   l.user,
		Action: "watchdog.fired",
		Metadata: map[string]any{
			"seq":            seq,
			"agents_replied": agentsReplied,
		},
	})
}

// LogHeartbeatFailure records a keepalive publish failure reported for
// addr, with its count of consecutive failures.
func (l *Logger) LogHeartbeatFailure(ctx context.Context, addr string, consecutiveFailures int) error {
	return l.store.Append(ctx, &Event{
		Type:   EventHeartbeatFail,
		User:   l.user,
		Action: "heartbeat.fail",
		Metadata: map[string]any{
			"addr":                 addr,
			"consecutive_failures": consecutiveFailures,
		},
	})
}

// LogAliasRun records an alias expansion being executed.
func (l *Logger) LogAliasRun(ctx context.Context, name string, stages int, result *EventResult) error {
	return l.store.Append(ctx, &Event{
		Type:   EventAliasRun,
		User:   l.user,
		Action: "alias.run",
		Result: result,
		Metadata: map[string]any{
			"alias":  name,
			"stages": stages,
		},
	})
}
