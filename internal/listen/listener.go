// Package listen drives one transcription session per listen phase.
//
// A [Listener] opens an STT stream, forwards gated frames from the
// [pipeline.FrameChannel] to it and interprets the transcripts that come
// back: in the wake phase they go to the [wakeword.Spotter], in the command
// phase to the [command.Accumulator]. Every phase returns a [Result] instead
// of an error so the orchestrator can branch on the outcome without
// unwrapping.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/myra/internal/command"
	"github.com/MrWong99/myra/internal/pipeline"
	"github.com/MrWong99/myra/internal/resilience"
	"github.com/MrWong99/myra/internal/wakeword"
	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/provider/stt"
)

// ErrBusy is carried by a [StatusBusy] result.
var ErrBusy = errors.New("listen: another listen is in progress")

// errStreamEnded is reported when the provider closes both transcript
// channels before the phase completed.
var errStreamEnded = errors.New("listen: transcription stream ended")

// Status is the outcome of a listen phase.
type Status int

const (
	// StatusOK means a wake phrase or command was recognised.
	StatusOK Status = iota

	// StatusTimeout means the phase deadline passed (or ctx was cancelled)
	// without a result.
	StatusTimeout

	// StatusServiceUnavailable means the STT stream could not be opened or
	// failed mid-phase.
	StatusServiceUnavailable

	// StatusBusy means another listen was already running.
	StatusBusy
)

// String returns the snake_case name used in logs and metric attributes.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusServiceUnavailable:
		return "service_unavailable"
	case StatusBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Result is what a listen phase produced.
type Result struct {
	Status Status

	// Text is the matched wake text in the wake phase and the command in the
	// command phase.
	Text string

	// Match is set by a successful wake phase.
	Match wakeword.Match

	// Err explains StatusServiceUnavailable, StatusBusy and a cancelled
	// StatusTimeout.
	Err error
}

// Recorder receives listen metrics. Implemented by *observe.Metrics.
type Recorder interface {
	RecordListen(ctx context.Context, phase, status string, d time.Duration)
	RecordWake(ctx context.Context, matchType string, partial bool)
}

// FrameWriter receives a copy of every frame sent to the recogniser.
// Implemented by *wavfile.Recorder.
type FrameWriter interface {
	Write(f audio.Frame) error
}

// Config holds the per-phase settings. It may be replaced at runtime with
// [Listener.SetConfig].
type Config struct {
	SampleRate     int
	Language       string
	WakeTimeout    time.Duration
	CommandTimeout time.Duration
}

// DefaultConfig returns 16 kHz English with a 10 s wake phase and 10 s
// command phase.
func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		Language:       "en",
		WakeTimeout:    10 * time.Second,
		CommandTimeout: 10 * time.Second,
	}
}

// Option configures a [Listener].
type Option func(*Listener)

// WithBreaker guards StartStream with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(l *Listener) { l.breaker = cb }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(l *Listener) { l.recorder = r }
}

// WithTee copies every forwarded frame to w.
func WithTee(w FrameWriter) Option {
	return func(l *Listener) { l.tee = w }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(l *Listener) { l.log = log }
}

// WithConfig sets the initial configuration.
func WithConfig(cfg Config) Option {
	return func(l *Listener) { l.cfg.Store(&cfg) }
}

// Listener runs wake and command phases against an STT provider. At most one
// phase runs at a time; a concurrent call returns [StatusBusy].
//
// The Listener is the only consumer of its FrameChannel.
type Listener struct {
	provider stt.Provider
	frames   *pipeline.FrameChannel
	spotter  *wakeword.Spotter
	acc      *command.Accumulator

	breaker  *resilience.CircuitBreaker
	recorder Recorder
	tee      FrameWriter
	log      *slog.Logger

	cfg     atomic.Pointer[Config]
	busy    atomic.Bool
	closers sync.WaitGroup
	teeWarn sync.Once
}

// New creates a Listener.
func New(provider stt.Provider, frames *pipeline.FrameChannel, spotter *wakeword.Spotter, acc *command.Accumulator, opts ...Option) *Listener {
	l := &Listener{
		provider: provider,
		frames:   frames,
		spotter:  spotter,
		acc:      acc,
	}
	for _, o := range opts {
		o(l)
	}
	if l.cfg.Load() == nil {
		cfg := DefaultConfig()
		l.cfg.Store(&cfg)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// SetConfig replaces the configuration for subsequent phases.
func (l *Listener) SetConfig(cfg Config) {
	l.cfg.Store(&cfg)
}

// Config returns the active configuration.
func (l *Listener) Config() Config {
	return *l.cfg.Load()
}

// Busy reports whether a phase is running.
func (l *Listener) Busy() bool {
	return l.busy.Load()
}

// ListenForWake streams audio until the spotter reports a wake phrase or the
// configured wake timeout elapses. The spotter's rolling buffer and any
// stale queued frames are discarded first.
func (l *Listener) ListenForWake(ctx context.Context) Result {
	if !l.busy.CompareAndSwap(false, true) {
		return Result{Status: StatusBusy, Err: ErrBusy}
	}
	defer l.busy.Store(false)

	cfg := l.Config()
	l.spotter.Reset()
	return l.run(ctx, "wake", cfg, cfg.WakeTimeout, func(tr stt.Transcript) (Result, bool) {
		m, ok := l.spotter.Evaluate(tr)
		if !ok {
			return Result{}, false
		}
		if l.recorder != nil {
			l.recorder.RecordWake(ctx, m.Type.String(), m.Partial)
		}
		l.log.Info("wake word detected",
			"match_type", m.Type.String(),
			"score", m.Score,
			"pattern", m.Pattern,
			"partial", m.Partial,
		)
		return Result{Status: StatusOK, Text: m.Text, Match: m}, true
	}, nil)
}

// ListenForCommand collects final transcripts into a command. seed, usually
// the text that followed the wake phrase, is added first; if it already
// completes a command no stream is opened.
//
// timeout bounds the phase; a value of zero or less uses the configured
// command timeout. When it elapses the fragments collected so far are
// returned as a StatusOK command, or an empty StatusTimeout result if there
// are none. The call never blocks past the timeout.
func (l *Listener) ListenForCommand(ctx context.Context, seed string, timeout time.Duration) Result {
	if !l.busy.CompareAndSwap(false, true) {
		return Result{Status: StatusBusy, Err: ErrBusy}
	}
	defer l.busy.Store(false)

	cfg := l.Config()
	if timeout <= 0 {
		timeout = cfg.CommandTimeout
	}
	l.acc.Reset()
	if cmd, done := l.acc.Add(seed); done {
		l.record(ctx, "command", StatusOK, 0)
		return Result{Status: StatusOK, Text: cmd}
	}
	return l.run(ctx, "command", cfg, timeout, func(tr stt.Transcript) (Result, bool) {
		if !tr.IsFinal {
			return Result{}, false
		}
		if cmd, done := l.acc.Add(tr.Text); done {
			return Result{Status: StatusOK, Text: cmd}, true
		}
		return Result{}, false
	}, func() Result {
		if cmd := l.acc.Flush(); cmd != "" {
			return Result{Status: StatusOK, Text: cmd}
		}
		return Result{Status: StatusTimeout}
	})
}

// Wait blocks until every STT session released by a finished phase has been
// closed.
func (l *Listener) Wait() {
	l.closers.Wait()
}

// run is the shared phase loop; the caller holds the busy flag. handle
// decides whether a transcript ends the phase; onTimeout (optional) builds
// the result when the deadline passes.
func (l *Listener) run(ctx context.Context, phase string, cfg Config, timeout time.Duration,
	handle func(stt.Transcript) (Result, bool), onTimeout func() Result) (res Result) {
	start := time.Now()
	defer func() { l.record(ctx, phase, res.Status, time.Since(start)) }()

	sess, err := l.open(ctx, cfg)
	if err != nil {
		l.log.Warn("transcription unavailable", "phase", phase, "err", err)
		return Result{Status: StatusServiceUnavailable, Err: err}
	}
	defer l.release(sess)

	if n := l.frames.Drain(); n > 0 {
		l.log.Debug("discarded stale frames", "phase", phase, "frames", n)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	partials, finals := sess.Partials(), sess.Finals()
	for {
		select {
		case <-ctx.Done():
			return Result{Status: StatusTimeout, Err: ctx.Err()}

		case <-timer.C:
			if onTimeout != nil {
				return onTimeout()
			}
			return Result{Status: StatusTimeout}

		case f := <-l.frames.C():
			l.write(f.Frame)
			if err := sess.SendAudio(audio.SamplesToPCM(f.Samples)); err != nil {
				l.log.Warn("send audio failed", "phase", phase, "err", err)
				return Result{Status: StatusServiceUnavailable, Err: fmt.Errorf("listen: send audio: %w", err)}
			}

		case tr, ok := <-partials:
			if !ok {
				partials = nil
				if finals == nil {
					return Result{Status: StatusServiceUnavailable, Err: errStreamEnded}
				}
				continue
			}
			if r, done := handle(tr); done {
				return r
			}

		case tr, ok := <-finals:
			if !ok {
				finals = nil
				if partials == nil {
					return Result{Status: StatusServiceUnavailable, Err: errStreamEnded}
				}
				continue
			}
			l.log.Debug("transcript", "phase", phase, "text", tr.Text)
			if r, done := handle(tr); done {
				return r
			}
		}
	}
}

func (l *Listener) open(ctx context.Context, cfg Config) (stt.SessionHandle, error) {
	streamCfg := stt.StreamConfig{
		SampleRate: cfg.SampleRate,
		Channels:   1,
		Language:   cfg.Language,
		Keywords:   l.spotter.Keywords(),
	}
	var sess stt.SessionHandle
	start := func() error {
		s, err := l.provider.StartStream(ctx, streamCfg)
		if err != nil {
			return err
		}
		sess = s
		return nil
	}
	var err error
	if l.breaker != nil {
		err = l.breaker.Execute(start)
	} else {
		err = start()
	}
	if err != nil {
		return nil, fmt.Errorf("listen: start stream: %w", err)
	}
	return sess, nil
}

// release closes sess in the background. Closing a provider session may
// flush buffered audio through the recogniser, which must not hold up the
// phase result.
func (l *Listener) release(sess stt.SessionHandle) {
	l.closers.Add(1)
	go func() {
		defer l.closers.Done()
		if err := sess.Close(); err != nil {
			l.log.Debug("close transcription session", "err", err)
		}
		audio.Drain(sess.Partials())
		audio.Drain(sess.Finals())
	}()
}

func (l *Listener) write(f audio.Frame) {
	if l.tee == nil {
		return
	}
	if err := l.tee.Write(f); err != nil {
		l.teeWarn.Do(func() { l.log.Warn("debug recording failed", "err", err) })
	}
}

func (l *Listener) record(ctx context.Context, phase string, status Status, d time.Duration) {
	if l.recorder != nil {
		l.recorder.RecordListen(ctx, phase, status.String(), d)
	}
}
