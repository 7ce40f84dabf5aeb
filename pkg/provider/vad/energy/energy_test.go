package energy_test

import (
	"testing"
	"time"

	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/provider/vad"
	"github.com/MrWong99/myra/pkg/provider/vad/energy"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func frameAt(offset time.Duration, energy float64) audio.EnhancedFrame {
	return audio.EnhancedFrame{
		Frame:  audio.Frame{SampleRate: 16000, Channels: 1, Captured: t0.Add(offset)},
		Energy: energy,
	}
}

func newSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	s, err := energy.New().NewSession(vad.Config{
		SampleRate:        16000,
		ActivityThreshold: 300,
		Hangover:          3 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestProcessFrame_Sequence(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	steps := []struct {
		at      time.Duration
		energy  float64
		want    vad.VADEventType
		forward bool
	}{
		{0, 100, vad.VADSilence, false},
		{250 * time.Millisecond, 500, vad.VADSpeechStart, true},
		{500 * time.Millisecond, 800, vad.VADSpeechContinue, true},
		{750 * time.Millisecond, 50, vad.VADSpeechContinue, true},  // hangover
		{3400 * time.Millisecond, 50, vad.VADSpeechContinue, true}, // 2.9s after last active
		{3500 * time.Millisecond, 50, vad.VADSpeechEnd, false},     // exactly 3s: expired
		{3750 * time.Millisecond, 50, vad.VADSilence, false},
		{4000 * time.Millisecond, 301, vad.VADSpeechStart, true},
	}
	for i, st := range steps {
		ev, err := s.ProcessFrame(frameAt(st.at, st.energy))
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != st.want {
			t.Errorf("step %d: type = %v, want %v", i, ev.Type, st.want)
		}
		if ev.Forward() != st.forward {
			t.Errorf("step %d: Forward() = %v, want %v", i, ev.Forward(), st.forward)
		}
		if ev.Energy != st.energy {
			t.Errorf("step %d: Energy = %v, want %v", i, ev.Energy, st.energy)
		}
	}
}

func TestProcessFrame_ThresholdIsExclusive(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	ev, _ := s.ProcessFrame(frameAt(0, 300))
	if ev.Forward() {
		t.Error("energy equal to the threshold should not count as activity")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	_, _ = s.ProcessFrame(frameAt(0, 1000))
	s.Reset()
	ev, _ := s.ProcessFrame(frameAt(time.Second, 0))
	if ev.Type != vad.VADSilence {
		t.Errorf("after Reset: type = %v, want silence", ev.Type)
	}
}

func TestClosedSession(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.ProcessFrame(frameAt(0, 1000)); err == nil {
		t.Error("ProcessFrame after Close should fail")
	}
}

func TestNewSession_Invalid(t *testing.T) {
	t.Parallel()
	e := energy.New()
	if _, err := e.NewSession(vad.Config{ActivityThreshold: -1}); err == nil {
		t.Error("negative threshold should be rejected")
	}
	if _, err := e.NewSession(vad.Config{Hangover: -time.Second}); err == nil {
		t.Error("negative hangover should be rejected")
	}
}

func TestSetConfig(t *testing.T) {
	t.Parallel()
	s := newSession(t).(*energy.Session)

	if ev, _ := s.ProcessFrame(frameAt(0, 250)); ev.Forward() {
		t.Fatalf("energy 250 forwarded at threshold 300")
	}
	if err := s.SetConfig(vad.Config{SampleRate: 16000, ActivityThreshold: 200, Hangover: time.Second}); err != nil {
		t.Fatal(err)
	}
	if ev, _ := s.ProcessFrame(frameAt(time.Second, 250)); ev.Type != vad.VADSpeechStart {
		t.Errorf("type = %v, want %v after lowering the threshold", ev.Type, vad.VADSpeechStart)
	}
	if ev, _ := s.ProcessFrame(frameAt(2500*time.Millisecond, 0)); ev.Type != vad.VADSpeechEnd {
		t.Errorf("type = %v, want %v once the shorter hangover expired", ev.Type, vad.VADSpeechEnd)
	}
	if err := s.SetConfig(vad.Config{ActivityThreshold: -1}); err == nil {
		t.Error("expected error for negative threshold")
	}
}
