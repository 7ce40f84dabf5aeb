// Package speech renders the assistant's replies audible.
//
// [Speaker] synthesises text with a tts.Provider and hands the WAV to a
// [Player]. [BeepPlayer] plays through the default output device;
// [LogPlayer] only logs, for headless runs and tests. Every Output call is
// synchronous: Speak returns once playback has finished, so the caller can
// resume listening without hearing itself.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/myra/pkg/provider/tts"
)

// Output speaks text to the user.
type Output interface {
	Speak(ctx context.Context, text string) error
}

// Player plays audio on an output device.
type Player interface {
	// Play blocks until the WAV file has been played or ctx is done.
	Play(ctx context.Context, wav []byte) error

	// Tone plays a sine tone of the given frequency and duration.
	Tone(ctx context.Context, hz float64, d time.Duration) error
}

// Option configures a [Speaker].
type Option func(*Speaker)

// WithVoice sets the voice passed to the TTS provider.
func WithVoice(v tts.VoiceProfile) Option {
	return func(s *Speaker) { s.voice = v }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.log = l }
}

// Speaker is the production [Output]. Calls are serialised so that replies
// never overlap.
type Speaker struct {
	provider tts.Provider
	player   Player
	voice    tts.VoiceProfile
	log      *slog.Logger

	mu sync.Mutex
}

var _ Output = (*Speaker)(nil)

// NewSpeaker creates a Speaker.
func NewSpeaker(provider tts.Provider, player Player, opts ...Option) *Speaker {
	s := &Speaker{provider: provider, player: player}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Speak synthesises text and plays it. Blank text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	wav, err := s.provider.Synthesize(ctx, text, s.voice)
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	s.log.Debug("speaking", "text", text, "synth_ms", time.Since(start).Milliseconds())
	if err := s.player.Play(ctx, wav); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

// Chime plays the two-note wake acknowledgement.
func (s *Speaker) Chime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(
		s.player.Tone(ctx, 880, 90*time.Millisecond),
		s.player.Tone(ctx, 1320, 120*time.Millisecond),
	)
}

// LogOutput is an [Output] that only logs what would have been said.
type LogOutput struct {
	Logger *slog.Logger
}

// Speak logs text at info level.
func (o LogOutput) Speak(_ context.Context, text string) error {
	l := o.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("assistant says", "text", text)
	return nil
}

// LogPlayer is a [Player] that logs instead of producing sound.
type LogPlayer struct {
	Logger *slog.Logger
}

// Play logs the WAV format and returns immediately.
func (p LogPlayer) Play(_ context.Context, wav []byte) error {
	format, err := tts.InspectWAV(wav)
	if err != nil {
		return err
	}
	p.logger().Debug("play", "sample_rate", format.SampleRate, "channels", format.Channels, "bytes", len(wav))
	return nil
}

// Tone logs the tone and returns immediately.
func (p LogPlayer) Tone(_ context.Context, hz float64, d time.Duration) error {
	p.logger().Debug("tone", "hz", hz, "duration", d)
	return nil
}

func (p LogPlayer) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
