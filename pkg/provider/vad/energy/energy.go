// Package energy provides an RMS-energy voice-activity engine with a trailing
// hangover window.
//
// A frame is speech when its energy exceeds the activity threshold. After the
// last speech frame, frames keep being classified as continuing speech until
// the hangover window expires, so that soft word endings reach the recogniser.
// Time is taken from each frame's capture timestamp, which keeps decisions
// deterministic for replayed audio.
package energy

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/provider/vad"
)

// Compile-time interface assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Engine creates energy-gate sessions.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Session{cfg: cfg}, nil
}

func validate(cfg vad.Config) error {
	if cfg.ActivityThreshold < 0 {
		return errors.New("energy: activity threshold must be >= 0")
	}
	if cfg.Hangover < 0 {
		return errors.New("energy: hangover must be >= 0")
	}
	return nil
}

// Session is a single energy-gate stream. It is safe for concurrent use.
type Session struct {
	cfg vad.Config

	mu         sync.Mutex
	lastActive time.Time
	inSpeech   bool
	closed     bool
}

// ProcessFrame applies the gate decision:
//
//   - energy above the threshold: speech, and the hangover window restarts;
//   - otherwise, within the hangover window: still speech;
//   - otherwise: dropped (SpeechEnd once, then Silence).
func (s *Session) ProcessFrame(frame audio.EnhancedFrame) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errors.New("energy: session closed")
	}

	now := frame.Captured
	ev := vad.VADEvent{Energy: frame.Energy}

	switch {
	case frame.Energy > s.cfg.ActivityThreshold:
		s.lastActive = now
		if s.inSpeech {
			ev.Type = vad.VADSpeechContinue
		} else {
			s.inSpeech = true
			ev.Type = vad.VADSpeechStart
		}
	case !s.lastActive.IsZero() && now.Sub(s.lastActive) < s.cfg.Hangover:
		ev.Type = vad.VADSpeechContinue
	case s.inSpeech:
		s.inSpeech = false
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

// SetConfig replaces the threshold and hangover. The current speech state is
// kept, so a change mid-utterance does not cut it off.
func (s *Session) SetConfig(cfg vad.Config) error {
	if err := validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// Reset forgets the last active instant.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Time{}
	s.inSpeech = false
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
