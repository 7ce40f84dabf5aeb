package voicecmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/myra/internal/session"
)

type fakeSession struct {
	awake     bool
	autoSleep bool
	extended  time.Duration
	sleeps    int
	stats     session.Stats
}

func (s *fakeSession) Sleep() bool {
	if !s.awake {
		return false
	}
	s.awake = false
	s.sleeps++
	return true
}

func (s *fakeSession) Extend(extra time.Duration) { s.extended += extra }

func (s *fakeSession) ToggleAutoSleep() bool {
	s.autoSleep = !s.autoSleep
	return s.autoSleep
}

func (s *fakeSession) Stats() session.Stats { return s.stats }

func newSession() *fakeSession { return &fakeSession{awake: true, autoSleep: true} }

func TestFilter_Sleep(t *testing.T) {
	t.Parallel()
	f := New("myra", 30*time.Second)

	for _, text := range []string{"goodbye", "Bye!", "stop", "quit.", "go to sleep", "goodbye myra", "Okay, that's all", "exit, Myra"} {
		t.Run(text, func(t *testing.T) {
			t.Parallel()
			s := newSession()
			out, ok, err := f.Check(context.Background(), text, s)
			if err != nil || !ok {
				t.Fatalf("Check(%q) = %v, %v, want match", text, ok, err)
			}
			if !out.Slept || out.Name != "sleep" {
				t.Errorf("Outcome = %+v, want sleep", out)
			}
			if s.sleeps != 1 {
				t.Errorf("sleeps = %d, want 1", s.sleeps)
			}
		})
	}
}

func TestFilter_SleepWhileAsleep(t *testing.T) {
	t.Parallel()
	f := New("myra", 30*time.Second)
	s := newSession()
	s.awake = false

	_, ok, err := f.Check(context.Background(), "goodbye", s)
	if !ok {
		t.Fatal("expected match")
	}
	if !errors.Is(err, errNotAwake) {
		t.Errorf("err = %v, want %v", err, errNotAwake)
	}
}

func TestFilter_NotACommand(t *testing.T) {
	t.Parallel()
	f := New("myra", 30*time.Second)

	for _, text := range []string{"", "   ", "stop the music", "what is the status of my order", "tell me about sleep"} {
		s := newSession()
		out, ok, err := f.Check(context.Background(), text, s)
		if ok || err != nil {
			t.Errorf("Check(%q) = %+v, %v, %v, want no match", text, out, ok, err)
		}
		if s.sleeps != 0 || s.extended != 0 {
			t.Errorf("Check(%q) touched the session", text)
		}
	}
}

func TestFilter_StayAwakeToggles(t *testing.T) {
	t.Parallel()
	f := New("myra", 30*time.Second)
	s := newSession()

	out, ok, _ := f.Check(context.Background(), "stay awake", s)
	if !ok || s.autoSleep {
		t.Fatalf("first toggle: ok=%v autoSleep=%v, want true false", ok, s.autoSleep)
	}
	if out.Reply == "" {
		t.Error("empty reply")
	}

	_, _, _ = f.Check(context.Background(), "don't sleep", s)
	if !s.autoSleep {
		t.Error("second toggle should re-enable auto-sleep")
	}
}

func TestFilter_Extend(t *testing.T) {
	t.Parallel()
	f := New("myra", 45*time.Second)
	s := newSession()

	out, ok, err := f.Check(context.Background(), "Give me more time.", s)
	if !ok || err != nil {
		t.Fatalf("Check = %v, %v, want match", ok, err)
	}
	if s.extended != 45*time.Second {
		t.Errorf("extended = %v, want 45s", s.extended)
	}
	if want := "Sure, I'll listen for another 45 seconds."; out.Reply != want {
		t.Errorf("Reply = %q, want %q", out.Reply, want)
	}
	if !out.Extended || out.Slept {
		t.Errorf("Outcome = %+v, want Extended and not Slept", out)
	}
}

func TestFilter_Status(t *testing.T) {
	t.Parallel()
	f := New("myra", 30*time.Second)
	s := newSession()
	s.stats = session.Stats{WakeUps: 1, CommandsProcessed: 3, Timeouts: 2, CurrentSession: 75 * time.Second}

	out, ok, _ := f.Check(context.Background(), "status", s)
	if !ok {
		t.Fatal("expected match")
	}
	want := "I've woken up once, handled 3 commands and timed out 2 times. This session has been running for 1 minutes and 15 seconds."
	if out.Reply != want {
		t.Errorf("Reply = %q, want %q", out.Reply, want)
	}
}

func TestFilter_NoName(t *testing.T) {
	t.Parallel()
	f := New("", 30*time.Second)
	s := newSession()

	if _, ok, _ := f.Check(context.Background(), "goodbye myra", s); ok {
		t.Error("trailing name should not match without a configured name")
	}
	if _, ok, _ := f.Check(context.Background(), "goodbye", s); !ok {
		t.Error("bare goodbye should match")
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	tests := []struct {
		st   session.Stats
		want string
	}{
		{session.Stats{}, "I've woken up 0 times, handled 0 commands and timed out 0 times. This session has been running for 0 seconds."},
		{session.Stats{WakeUps: 2, CommandsProcessed: 1, Timeouts: 1, CurrentSession: 2 * time.Minute},
			"I've woken up 2 times, handled 1 command and timed out once. This session has been running for 2 minutes."},
	}
	for _, tt := range tests {
		if got := Summary(tt.st); got != tt.want {
			t.Errorf("Summary(%+v) = %q, want %q", tt.st, got, tt.want)
		}
	}
}
