// Package session implements the assistant's sleep/wake state machine.
//
// The [Machine] starts Sleeping. A wake detection moves it to Awake, where
// every bit of activity (a processed command, a spoken response) pushes the
// idle deadline back. The orchestrator polls [Machine.CheckTimeout] between
// listens: once the idle time reaches Timeout minus WarningWindow the machine
// asks for a single spoken warning, and at Timeout it falls back asleep.
//
// All methods are safe for concurrent use: speech may be rendered on another
// goroutine than the one checking the timeout.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the coarse state of the assistant.
type State int

const (
	StateSleeping State = iota
	StateAwake
)

func (s State) String() string {
	switch s {
	case StateSleeping:
		return "sleeping"
	case StateAwake:
		return "awake"
	default:
		return "unknown"
	}
}

// Action is the outcome of [Machine.CheckTimeout].
type Action int

const (
	// ActionNone: the machine is asleep or auto-sleep is off.
	ActionNone Action = iota
	// ActionContinue: awake, nothing to do yet.
	ActionContinue
	// ActionWarn: speak the one-time timeout warning.
	ActionWarn
	// ActionSleep: the session timed out; the machine is now asleep.
	ActionSleep
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionContinue:
		return "continue"
	case ActionWarn:
		return "warn"
	case ActionSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// Transition reasons reported to the [Recorder].
const (
	ReasonWake    = "wake"
	ReasonTimeout = "timeout"
	ReasonManual  = "manual"
)

// Recorder receives state transitions, typically for metrics.
type Recorder interface {
	RecordSessionTransition(ctx context.Context, to, reason string)
}

// Config holds the timing of a session.
type Config struct {
	// Timeout is how long the assistant stays awake without activity.
	Timeout time.Duration
	// WarningWindow is how long before Timeout the warning is issued.
	WarningWindow time.Duration
	// AutoSleep enables timeout-driven sleep. Explicit sleep always works.
	AutoSleep bool
}

// DefaultConfig returns a 30 s session with a 5 s warning.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second, WarningWindow: 5 * time.Second, AutoSleep: true}
}

// Validate checks the timing for consistency.
func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("session: timeout must be positive, got %s", c.Timeout))
	}
	if c.WarningWindow < 0 || (c.Timeout > 0 && c.WarningWindow >= c.Timeout) {
		errs = append(errs, fmt.Errorf("session: warning window %s must be in [0, timeout)", c.WarningWindow))
	}
	return errors.Join(errs...)
}

// Stats are lifetime counters. They never decrease.
type Stats struct {
	WakeUps           int
	Timeouts          int
	ManualSleeps      int
	CommandsProcessed int
	// TotalSessionTime is the summed duration of all finished sessions.
	TotalSessionTime time.Duration
	// CurrentSession is the age of the running session, zero while asleep.
	CurrentSession time.Duration
}

// Option is a functional option for a [Machine].
type Option func(*Machine)

// WithClock replaces time.Now. Used by tests to drive time.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithRecorder reports transitions to r.
func WithRecorder(r Recorder) Option {
	return func(m *Machine) { m.rec = r }
}

// Machine is the session state machine.
type Machine struct {
	now func() time.Time
	rec Recorder

	mu           sync.Mutex
	cfg          Config
	state        State
	warned       bool
	sessionStart time.Time
	lastActivity time.Time
	stats        Stats
}

// New creates a sleeping Machine.
func New(cfg Config, opts ...Option) *Machine {
	m := &Machine{now: time.Now, cfg: cfg}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetConfig changes the session timing. AutoSleep is left as toggled by
// voice command; only the durations are taken from cfg.
func (m *Machine) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Timeout = cfg.Timeout
	m.cfg.WarningWindow = cfg.WarningWindow
}

// Config returns the active timing.
func (m *Machine) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// WakeDetected moves a sleeping machine to Awake and reports whether it did.
// It is a no-op while already awake.
func (m *Machine) WakeDetected() bool {
	m.mu.Lock()
	if m.state == StateAwake {
		m.mu.Unlock()
		return false
	}
	now := m.now()
	m.state = StateAwake
	m.sessionStart = now
	m.lastActivity = now
	m.warned = false
	m.stats.WakeUps++
	m.mu.Unlock()

	m.record(StateAwake, ReasonWake)
	return true
}

// Touch records activity. Ignored while asleep.
func (m *Machine) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked()
}

// CommandProcessed records activity and counts a handled command.
func (m *Machine) CommandProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwake {
		return
	}
	m.touchLocked()
	m.stats.CommandsProcessed++
}

// CountCommand counts a handled command without recording activity. Use it
// when the command already moved the deadline itself, as Extend does.
func (m *Machine) CountCommand() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAwake {
		m.stats.CommandsProcessed++
	}
}

func (m *Machine) touchLocked() {
	if m.state != StateAwake {
		return
	}
	m.lastActivity = m.now()
	m.warned = false
}

// CheckTimeout evaluates the idle time and returns what the caller should
// do. The warning is returned at most once per idle period.
func (m *Machine) CheckTimeout() Action {
	m.mu.Lock()
	if m.state != StateAwake || !m.cfg.AutoSleep {
		m.mu.Unlock()
		return ActionNone
	}
	now := m.now()
	idle := now.Sub(m.lastActivity)
	switch {
	case idle >= m.cfg.Timeout:
		m.sleepLocked(now)
		m.stats.Timeouts++
		m.mu.Unlock()
		m.record(StateSleeping, ReasonTimeout)
		return ActionSleep
	case idle >= m.cfg.Timeout-m.cfg.WarningWindow && !m.warned:
		m.warned = true
		m.mu.Unlock()
		return ActionWarn
	default:
		m.mu.Unlock()
		return ActionContinue
	}
}

// Sleep puts an awake machine to sleep on request and reports whether it
// did.
func (m *Machine) Sleep() bool {
	m.mu.Lock()
	if m.state != StateAwake {
		m.mu.Unlock()
		return false
	}
	m.sleepLocked(m.now())
	m.stats.ManualSleeps++
	m.mu.Unlock()

	m.record(StateSleeping, ReasonManual)
	return true
}

func (m *Machine) sleepLocked(now time.Time) {
	m.stats.TotalSessionTime += now.Sub(m.sessionStart)
	m.state = StateSleeping
	m.warned = false
}

// Extend pushes the idle deadline back by extra. Ignored while asleep.
func (m *Machine) Extend(extra time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwake {
		return
	}
	m.lastActivity = m.lastActivity.Add(extra)
	m.warned = false
}

// ToggleAutoSleep flips timeout-driven sleep and returns the new setting.
func (m *Machine) ToggleAutoSleep() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.AutoSleep = !m.cfg.AutoSleep
	return m.cfg.AutoSleep
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Phase describes the state for logs and health output: "sleeping",
// "awake", or "warned" once the timeout warning has been issued.
func (m *Machine) Phase() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAwake && m.warned {
		return "warned"
	}
	return m.state.String()
}

// Deadline returns the instant at which the session times out if nothing
// else happens. ok is false while asleep or with auto-sleep off.
func (m *Machine) Deadline() (deadline time.Time, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwake || !m.cfg.AutoSleep {
		return time.Time{}, false
	}
	return m.lastActivity.Add(m.cfg.Timeout), true
}

// TimeUntilCheck returns how long the caller may wait before the next
// CheckTimeout can return something other than ActionContinue. ok is false
// when no timeout is pending.
func (m *Machine) TimeUntilCheck() (d time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwake || !m.cfg.AutoSleep {
		return 0, false
	}
	next := m.lastActivity.Add(m.cfg.Timeout)
	if !m.warned {
		next = next.Add(-m.cfg.WarningWindow)
	}
	return max(next.Sub(m.now()), 0), true
}

// Stats returns a snapshot of the lifetime counters.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	if m.state == StateAwake {
		s.CurrentSession = m.now().Sub(m.sessionStart)
	}
	return s
}

func (m *Machine) record(to State, reason string) {
	if m.rec != nil {
		m.rec.RecordSessionTransition(context.Background(), to.String(), reason)
	}
}
