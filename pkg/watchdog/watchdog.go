// Package watchdog implements the shared inactivity timer the controller
// uses to detect stage completion when a group's full membership is
// unknown (spec §4.8): any arriving message resets the timer, and a
// background poller fires a completion callback once it elapses.
package watchdog

import (
	"sync"
	"time"
)

// DefaultTimeout is the default inactivity timeout between messages.
const DefaultTimeout = 500 * time.Millisecond

// LaunchTimeout is the generous timeout a wait stage extends to, to
// absorb asynchronous launch latency.
const LaunchTimeout = 20 * time.Second

// pollInterval is how often the background goroutine checks for expiry.
const pollInterval = 50 * time.Millisecond

// Watchdog is a shared mutable last_update/timeout/enabled structure
// polled by a dedicated goroutine.
type Watchdog struct {
	mu         sync.Mutex
	lastUpdate time.Time
	timeout    time.Duration
	enabled    bool

	onTimeout func()
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a Watchdog with the given initial timeout, enabled, with
// its clock starting now.
func New(timeout time.Duration) *Watchdog {
	return &Watchdog{
		lastUpdate: time.Now(),
		timeout:    timeout,
		enabled:    true,
		stopCh:     make(chan struct{}),
	}
}

// Update resets the inactivity timer; called by the controller's message
// loop on every arriving response.
func (w *Watchdog) Update() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUpdate = time.Now()
}

// SetTimeout changes the timeout and resets the clock.
func (w *Watchdog) SetTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = d
	w.lastUpdate = time.Now()
}

// Disable keeps the watchdog from firing until Enable is called.
func (w *Watchdog) Disable() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = false
}

// Enable re-arms the watchdog for the next stage and resets its clock.
func (w *Watchdog) Enable() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = true
	w.lastUpdate = time.Now()
}

// TimedOut reports whether the watchdog is enabled and its timeout has
// elapsed since the last Update.
func (w *Watchdog) TimedOut() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.enabled {
		return false
	}
	return time.Since(w.lastUpdate) > w.timeout
}

// Run starts the background poller, invoking onTimeout once each time
// TimedOut transitions from false to true (not repeatedly), until Stop
// is called. Run is meant to be launched with `go watchdog.Run(...)`.
func (w *Watchdog) Run(onTimeout func()) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	fired := false
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.TimedOut() {
				if !fired {
					fired = true
					onTimeout()
				}
			} else {
				fired = false
			}
		}
	}
}

// Stop halts the background poller started by Run.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}
