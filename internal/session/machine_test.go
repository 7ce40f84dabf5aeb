package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/myra/internal/session"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type transition struct{ to, reason string }

type recorder struct {
	mu  sync.Mutex
	got []transition
}

func (r *recorder) RecordSessionTransition(_ context.Context, to, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, transition{to, reason})
}

func newMachine(t *testing.T) (*session.Machine, *fakeClock) {
	t.Helper()
	clk := newClock()
	return session.New(session.DefaultConfig(), session.WithClock(clk.Now)), clk
}

func TestInitialState(t *testing.T) {
	t.Parallel()
	m, _ := newMachine(t)
	if got := m.State(); got != session.StateSleeping {
		t.Errorf("State = %v, want %v", got, session.StateSleeping)
	}
	if got := m.Phase(); got != "sleeping" {
		t.Errorf("Phase = %q, want sleeping", got)
	}
}

func TestWarnOnceThenSleep(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	m.WakeDetected()

	clk.Advance(10 * time.Second)
	if got := m.CheckTimeout(); got != session.ActionContinue {
		t.Errorf("t=10s: got %v, want %v", got, session.ActionContinue)
	}

	clk.Advance(16 * time.Second) // t=26s
	if got := m.CheckTimeout(); got != session.ActionWarn {
		t.Errorf("t=26s: got %v, want %v", got, session.ActionWarn)
	}
	if got := m.Phase(); got != "warned" {
		t.Errorf("Phase = %q, want warned", got)
	}
	if got := m.CheckTimeout(); got != session.ActionContinue {
		t.Errorf("t=26s second check: got %v, want %v", got, session.ActionContinue)
	}

	clk.Advance(5 * time.Second) // t=31s
	if got := m.CheckTimeout(); got != session.ActionSleep {
		t.Errorf("t=31s: got %v, want %v", got, session.ActionSleep)
	}
	if got := m.State(); got != session.StateSleeping {
		t.Errorf("State = %v, want sleeping", got)
	}

	st := m.Stats()
	if st.Timeouts != 1 || st.WakeUps != 1 || st.ManualSleeps != 0 {
		t.Errorf("Stats = %+v, want 1 wake-up and 1 timeout", st)
	}
	if st.TotalSessionTime != 31*time.Second {
		t.Errorf("TotalSessionTime = %v, want 31s", st.TotalSessionTime)
	}
}

func TestSleepingIgnoresTimeouts(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	for range 3 {
		clk.Advance(time.Hour)
		if got := m.CheckTimeout(); got != session.ActionNone {
			t.Fatalf("CheckTimeout while sleeping = %v, want %v", got, session.ActionNone)
		}
	}
	if got := m.State(); got != session.StateSleeping {
		t.Errorf("State = %v, want sleeping", got)
	}
	if st := m.Stats(); st != (session.Stats{}) {
		t.Errorf("Stats = %+v, want zero", st)
	}
}

func TestOnlyWakeLeavesSleeping(t *testing.T) {
	t.Parallel()
	m, _ := newMachine(t)
	m.Touch()
	m.CommandProcessed()
	m.Extend(time.Minute)
	if m.Sleep() {
		t.Error("Sleep while sleeping reported a transition")
	}
	if got := m.State(); got != session.StateSleeping {
		t.Fatalf("State = %v, want sleeping", got)
	}
	if st := m.Stats(); st.CommandsProcessed != 0 || st.ManualSleeps != 0 {
		t.Errorf("Stats = %+v, want no counts while sleeping", st)
	}
	if !m.WakeDetected() {
		t.Error("WakeDetected did not transition")
	}
}

func TestWakeDetectedIdempotent(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	m.WakeDetected()
	clk.Advance(20 * time.Second)
	if m.WakeDetected() {
		t.Error("second WakeDetected reported a transition")
	}
	if got := m.Stats().WakeUps; got != 1 {
		t.Errorf("WakeUps = %d, want 1", got)
	}
	// The repeated wake must not have refreshed the activity timestamp.
	clk.Advance(6 * time.Second)
	if got := m.CheckTimeout(); got != session.ActionWarn {
		t.Errorf("t=26s: got %v, want %v", got, session.ActionWarn)
	}
}

func TestExtendShiftsDeadline(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	m.WakeDetected()

	before, ok := m.Deadline()
	if !ok {
		t.Fatal("Deadline not available while awake")
	}
	m.Extend(15 * time.Second)
	after, _ := m.Deadline()
	if got := after.Sub(before); got != 15*time.Second {
		t.Errorf("deadline moved by %v, want 15s", got)
	}

	clk.Advance(31 * time.Second)
	if got := m.CheckTimeout(); got != session.ActionContinue {
		t.Errorf("t=31s after extend: got %v, want %v", got, session.ActionContinue)
	}
	clk.Advance(10 * time.Second) // t=41s, idle 26s
	if got := m.CheckTimeout(); got != session.ActionWarn {
		t.Errorf("t=41s: got %v, want %v", got, session.ActionWarn)
	}
	m.Extend(10 * time.Second)
	if got := m.Phase(); got != "awake" {
		t.Errorf("Extend did not clear the warning, Phase = %q", got)
	}
	clk.Advance(5 * time.Second) // idle 21s after the second extend
	if got := m.CheckTimeout(); got != session.ActionContinue {
		t.Errorf("t=46s: got %v, want %v", got, session.ActionContinue)
	}
}

func TestActivityResetsTimer(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	m.WakeDetected()
	clk.Advance(26 * time.Second)
	if got := m.CheckTimeout(); got != session.ActionWarn {
		t.Fatalf("got %v, want warn", got)
	}
	m.CommandProcessed()
	clk.Advance(26 * time.Second)
	if got := m.CheckTimeout(); got != session.ActionWarn {
		t.Errorf("warning not re-armed by activity: got %v", got)
	}
	if got := m.Stats().CommandsProcessed; got != 1 {
		t.Errorf("CommandsProcessed = %d, want 1", got)
	}
}

func TestToggleAutoSleep(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	m.WakeDetected()
	if m.ToggleAutoSleep() {
		t.Fatal("ToggleAutoSleep returned true, want false")
	}
	clk.Advance(time.Hour)
	if got := m.CheckTimeout(); got != session.ActionNone {
		t.Errorf("auto-sleep off: got %v, want %v", got, session.ActionNone)
	}
	if _, ok := m.TimeUntilCheck(); ok {
		t.Error("TimeUntilCheck should report no pending timeout")
	}
	if !m.Sleep() {
		t.Error("explicit Sleep must work with auto-sleep off")
	}
	if got := m.Stats().ManualSleeps; got != 1 {
		t.Errorf("ManualSleeps = %d, want 1", got)
	}
	if !m.ToggleAutoSleep() {
		t.Error("second toggle should re-enable auto-sleep")
	}
}

func TestTimeUntilCheck(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	if _, ok := m.TimeUntilCheck(); ok {
		t.Error("sleeping machine reported a pending check")
	}
	m.WakeDetected()
	clk.Advance(5 * time.Second)
	if d, ok := m.TimeUntilCheck(); !ok || d != 20*time.Second {
		t.Errorf("before warning: got %v (ok=%v), want 20s", d, ok)
	}
	clk.Advance(20 * time.Second)
	m.CheckTimeout()
	if d, _ := m.TimeUntilCheck(); d != 5*time.Second {
		t.Errorf("after warning: got %v, want 5s", d)
	}
	clk.Advance(time.Minute)
	if d, _ := m.TimeUntilCheck(); d != 0 {
		t.Errorf("overdue: got %v, want 0", d)
	}
}

func TestStatsMonotonicAndRecorder(t *testing.T) {
	t.Parallel()
	clk := newClock()
	rec := &recorder{}
	m := session.New(session.DefaultConfig(), session.WithClock(clk.Now), session.WithRecorder(rec))

	var prev session.Stats
	for i := range 3 {
		m.WakeDetected()
		clk.Advance(2 * time.Second)
		if st := m.Stats(); st.CurrentSession != 2*time.Second {
			t.Errorf("CurrentSession = %v, want 2s", st.CurrentSession)
		}
		m.CommandProcessed()
		if i%2 == 0 {
			m.Sleep()
		} else {
			clk.Advance(time.Minute)
			m.CheckTimeout()
		}
		st := m.Stats()
		if st.WakeUps < prev.WakeUps || st.CommandsProcessed < prev.CommandsProcessed ||
			st.TotalSessionTime < prev.TotalSessionTime {
			t.Errorf("stats decreased: %+v -> %+v", prev, st)
		}
		prev = st
	}
	if prev.WakeUps != 3 || prev.ManualSleeps != 2 || prev.Timeouts != 1 || prev.CommandsProcessed != 3 {
		t.Errorf("final stats = %+v", prev)
	}

	want := []transition{
		{"awake", "wake"}, {"sleeping", "manual"},
		{"awake", "wake"}, {"sleeping", "timeout"},
		{"awake", "wake"}, {"sleeping", "manual"},
	}
	if len(rec.got) != len(want) {
		t.Fatalf("transitions = %v, want %v", rec.got, want)
	}
	for i := range want {
		if rec.got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, rec.got[i], want[i])
		}
	}
}

func TestSetConfigKeepsAutoSleep(t *testing.T) {
	t.Parallel()
	m, _ := newMachine(t)
	m.ToggleAutoSleep()
	m.SetConfig(session.Config{Timeout: 45 * time.Second, WarningWindow: 10 * time.Second, AutoSleep: true})
	cfg := m.Config()
	if cfg.Timeout != 45*time.Second || cfg.WarningWindow != 10*time.Second {
		t.Errorf("Config = %+v, want 45s/10s", cfg)
	}
	if cfg.AutoSleep {
		t.Error("SetConfig overrode the toggled auto-sleep setting")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     session.Config
		wantErr bool
	}{
		{"default", session.DefaultConfig(), false},
		{"zero timeout", session.Config{}, true},
		{"warning equals timeout", session.Config{Timeout: time.Second, WarningWindow: time.Second}, true},
		{"negative warning", session.Config{Timeout: time.Second, WarningWindow: -1}, true},
		{"no warning", session.Config{Timeout: time.Second}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCountCommandKeepsDeadline(t *testing.T) {
	t.Parallel()
	m, clk := newMachine(t)
	m.WakeDetected()
	start := clk.Now()

	clk.Advance(4 * time.Second)
	m.Touch()
	m.Extend(30 * time.Second)
	clk.Advance(2 * time.Second)
	m.CountCommand()

	deadline, ok := m.Deadline()
	if !ok {
		t.Fatal("Deadline not available while awake")
	}
	if want := start.Add(4*time.Second + 30*time.Second + 30*time.Second); !deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", deadline, want)
	}
	if got := m.Stats().CommandsProcessed; got != 1 {
		t.Errorf("CommandsProcessed = %d, want 1", got)
	}

	m.Sleep()
	m.CountCommand()
	if got := m.Stats().CommandsProcessed; got != 1 {
		t.Errorf("CommandsProcessed after sleep = %d, want 1", got)
	}
}
