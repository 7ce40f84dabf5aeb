package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/myra/internal/enhance"
	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/provider/vad"
	"github.com/MrWong99/myra/pkg/provider/vad/energy"
	vadmock "github.com/MrWong99/myra/pkg/provider/vad/mock"
)

type frameCounter struct {
	mu                 sync.Mutex
	forwarded, dropped int
}

func (c *frameCounter) RecordFrame(_ context.Context, forwarded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if forwarded {
		c.forwarded++
	} else {
		c.dropped++
	}
}

func tone(amp int16, n int, at time.Time) audio.Frame {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return audio.Frame{Samples: s, SampleRate: 16000, Channels: 1, Captured: at}
}

func TestProducer_GatesAndForwards(t *testing.T) {
	t.Parallel()
	gate, err := energy.New().NewSession(vad.Config{
		SampleRate:        16000,
		ActivityThreshold: 300,
		Hangover:          time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	out := NewFrameChannel(10, nil)
	rec := &frameCounter{}
	p := NewProducer(enhance.New(enhance.DefaultConfig()), gate, out, WithFrameRecorder(rec))

	t0 := time.Unix(1000, 0)
	// quiet, speech, hangover, hangover expired
	p.Handle(tone(50, 256, t0))
	p.Handle(tone(4000, 256, t0.Add(250*time.Millisecond)))
	p.Handle(tone(50, 256, t0.Add(500*time.Millisecond)))
	p.Handle(tone(50, 256, t0.Add(1500*time.Millisecond)))

	captured, forwarded := p.Stats()
	if captured != 4 || forwarded != 2 {
		t.Errorf("Stats() = (%d, %d), want (4, 2)", captured, forwarded)
	}
	if out.Len() != 2 {
		t.Fatalf("channel Len() = %d, want 2", out.Len())
	}
	if rec.forwarded != 2 || rec.dropped != 2 {
		t.Errorf("recorder = %d forwarded / %d dropped, want 2 / 2", rec.forwarded, rec.dropped)
	}

	first := <-out.C()
	if first.Energy <= 300 {
		t.Errorf("forwarded speech frame energy = %v, want > 300", first.Energy)
	}
	if got := p.LastFrame(); got != t0.Add(1500*time.Millisecond).UnixNano() {
		t.Errorf("LastFrame() = %d, want %d", got, t0.Add(1500*time.Millisecond).UnixNano())
	}
}

func TestProducer_GateErrorFailsOpen(t *testing.T) {
	t.Parallel()
	gate := &vadmock.Session{ProcessFrameErr: errors.New("boom")}
	out := NewFrameChannel(4, nil)
	p := NewProducer(enhance.New(enhance.DefaultConfig()), gate, out)

	p.Handle(tone(10, 16, time.Now()))
	if out.Len() != 1 {
		t.Errorf("channel Len() = %d, want 1", out.Len())
	}
	if len(gate.Frames) != 1 {
		t.Errorf("gate saw %d frames, want 1", len(gate.Frames))
	}
}

func TestProducer_EnhancesBeforeGating(t *testing.T) {
	t.Parallel()
	gate := &vadmock.Session{EventResult: vad.VADEvent{Type: vad.VADSpeechContinue}}
	out := NewFrameChannel(4, nil)
	cfg := enhance.DefaultConfig()
	p := NewProducer(enhance.New(cfg), gate, out)

	// Every sample is under the noise gate, so the gate must see silence.
	p.Handle(tone(60, 32, time.Now()))
	if len(gate.Frames) != 1 {
		t.Fatalf("gate saw %d frames, want 1", len(gate.Frames))
	}
	if gate.Frames[0].Energy != 0 {
		t.Errorf("gate frame energy = %v, want 0 after the noise gate", gate.Frames[0].Energy)
	}
}
