package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/myra/pkg/audio"
)

// Default restart parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrCaptureLost is returned by [Supervisor.Run] when the capture source
// stalled and could not be restarted.
var ErrCaptureLost = errors.New("pipeline: capture lost")

// SupervisorConfig configures a [Supervisor].
type SupervisorConfig struct {
	// Source is the capture device to supervise.
	Source audio.Source

	// Handler receives every captured frame, normally [Producer.Handle].
	Handler audio.Handler

	// StallTimeout is how long the source may go without delivering a frame
	// before it is restarted. Zero disables the watchdog, which suits finite
	// sources such as a WAV replay.
	StallTimeout time.Duration

	// MaxRetries is the number of restart attempts per stall before Run
	// gives up. Defaults to 10.
	MaxRetries int

	// Backoff is the initial wait between attempts, doubling up to
	// MaxBackoff. Defaults to 1s and 30s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// OnRestart is called after a successful restart. May be nil.
	OnRestart func()

	Logger *slog.Logger
}

// Supervisor owns the capture source: it starts it, watches for stalls
// (a USB microphone unplugged mid-session stops delivering callbacks without
// reporting an error) and restarts it with exponential backoff.
//
// All methods are safe for concurrent use.
type Supervisor struct {
	src          audio.Source
	handler      audio.Handler
	stallTimeout time.Duration
	maxRetries   int
	backoff      time.Duration
	maxBackoff   time.Duration
	onRestart    func()
	log          *slog.Logger

	lastFrame atomic.Int64 // wall-clock unix nanos
	running   atomic.Bool
	restarts  atomic.Uint64

	mu       sync.Mutex
	stopOnce sync.Once
	done     chan struct{}
	stalled  chan struct{}
}

// NewSupervisor creates a [Supervisor]. Zero-value fields take defaults.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	s := &Supervisor{
		src:          cfg.Source,
		handler:      cfg.Handler,
		stallTimeout: cfg.StallTimeout,
		maxRetries:   cfg.MaxRetries,
		backoff:      cfg.Backoff,
		maxBackoff:   cfg.MaxBackoff,
		onRestart:    cfg.OnRestart,
		log:          cfg.Logger,
		done:         make(chan struct{}),
		stalled:      make(chan struct{}, 1),
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.backoff <= 0 {
		s.backoff = defaultBackoff
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = defaultMaxBackoff
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Start opens the source. Its error (wrapping [audio.ErrCaptureUnavailable])
// is fatal to the pipeline.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.src.Start(s.handle); err != nil {
		return err
	}
	s.lastFrame.Store(time.Now().UnixNano())
	s.running.Store(true)
	return nil
}

func (s *Supervisor) handle(f audio.Frame) {
	s.lastFrame.Store(time.Now().UnixNano())
	s.handler(f)
}

// Running reports whether the source is currently started.
func (s *Supervisor) Running() bool { return s.running.Load() }

// Restarts returns how many times the source was restarted.
func (s *Supervisor) Restarts() uint64 { return s.restarts.Load() }

// NotifyStall asks the supervisor to restart the source without waiting for
// the watchdog. Safe to call repeatedly; extra calls coalesce.
func (s *Supervisor) NotifyStall() {
	select {
	case s.stalled <- struct{}{}:
	default:
	}
}

// Run watches the source until ctx is cancelled or Stop is called. It
// returns [ErrCaptureLost] if a stalled source could not be restarted.
func (s *Supervisor) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.stallTimeout > 0 {
		t := time.NewTicker(s.stallTimeout / 2)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-tick:
			idle := time.Since(time.Unix(0, s.lastFrame.Load()))
			if idle < s.stallTimeout {
				continue
			}
			s.log.Warn("capture stalled, restarting source", "idle", idle)
			if err := s.restart(ctx); err != nil {
				return err
			}
		case <-s.stalled:
			if err := s.restart(ctx); err != nil {
				return err
			}
		}
	}
}

// restart closes and reopens the source with exponential backoff.
func (s *Supervisor) restart(ctx context.Context) error {
	backoff := s.backoff
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		s.mu.Lock()
		if err := s.src.Close(); err != nil {
			s.log.Debug("closing stalled source", "err", err)
		}
		s.running.Store(false)
		err := s.src.Start(s.handle)
		if err == nil {
			s.lastFrame.Store(time.Now().UnixNano())
			s.running.Store(true)
		}
		s.mu.Unlock()

		if err == nil {
			s.restarts.Add(1)
			s.log.Info("capture source restarted", "attempt", attempt)
			if s.onRestart != nil {
				s.onRestart()
			}
			return nil
		}

		s.log.Warn("capture restart failed",
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"backoff", backoff,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
	return fmt.Errorf("%w after %d attempts", ErrCaptureLost, s.maxRetries)
}

// Stop ends Run and closes the source. Safe to call more than once.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running.Store(false)
	return s.src.Close()
}
