// Package app wires every Myra subsystem into a running assistant.
//
// New builds the capture pipeline (enhancement → voice-activity gate →
// frame channel), the listener, the session machine and the command
// handlers from the config and the injected providers. Run starts capture
// and drives the wake/command loop until ctx is cancelled; Shutdown says
// goodbye and tears everything down in order.
//
// For testing, inject doubles through [Providers] (audio/mock, stt/mock,
// tts/mock, llm/mock) and the functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/myra/internal/command"
	"github.com/MrWong99/myra/internal/config"
	"github.com/MrWong99/myra/internal/dispatch"
	"github.com/MrWong99/myra/internal/enhance"
	"github.com/MrWong99/myra/internal/health"
	"github.com/MrWong99/myra/internal/listen"
	"github.com/MrWong99/myra/internal/observe"
	"github.com/MrWong99/myra/internal/pipeline"
	"github.com/MrWong99/myra/internal/resilience"
	"github.com/MrWong99/myra/internal/session"
	"github.com/MrWong99/myra/internal/speech"
	"github.com/MrWong99/myra/internal/voicecmd"
	"github.com/MrWong99/myra/internal/wakeword"
	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/audio/wavfile"
	"github.com/MrWong99/myra/pkg/provider/llm"
	"github.com/MrWong99/myra/pkg/provider/stt"
	"github.com/MrWong99/myra/pkg/provider/tts"
	"github.com/MrWong99/myra/pkg/provider/vad"
	"github.com/MrWong99/myra/pkg/provider/vad/energy"
)

const (
	// captureStallTimeout restarts a live microphone that stopped delivering
	// callbacks. Replayed files are finite and run without a watchdog.
	captureStallTimeout = 5 * time.Second

	// defaultRetryDelay is the pause after a listen phase found the
	// recogniser unavailable.
	defaultRetryDelay = time.Second

	serverShutdownTimeout = 5 * time.Second
)

// errSourceFinished ends Run when a finite audio source has been played out.
var errSourceFinished = errors.New("app: audio source finished")

// Providers holds the external engines. Source and STT are required; a nil
// TTS logs replies instead of speaking them, a nil Player logs instead of
// playing, and a nil LLM leaves only session commands and clock questions.
type Providers struct {
	Source audio.Source
	STT    stt.Provider
	TTS    tts.Provider
	Player speech.Player
	LLM    llm.Provider
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metric instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock replaces time.Now for the session machine and the clock
// dispatcher.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithFs sets the filesystem used for the debug recording.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithOutput replaces the speech output built from the TTS provider.
func WithOutput(out speech.Output) Option {
	return func(a *App) { a.out = out }
}

// WithRetryDelay sets the pause after the recogniser was unavailable.
func WithRetryDelay(d time.Duration) Option {
	return func(a *App) { a.retryDelay = d }
}

// App owns all subsystem lifetimes and runs the listen loop.
type App struct {
	cfg        *config.Config
	providers  *Providers
	log        *slog.Logger
	level      *slog.LevelVar
	metrics    *observe.Metrics
	now        func() time.Time
	fs         afero.Fs
	retryDelay time.Duration

	// Capture path.
	filter     *enhance.Filter
	gate       vad.SessionHandle
	frames     *pipeline.FrameChannel
	producer   *pipeline.Producer
	supervisor *pipeline.Supervisor
	recording  *wavfile.Recorder

	// Recognition and session.
	spotter  *wakeword.Spotter
	acc      *command.Accumulator
	session  *session.Machine
	breaker  *resilience.CircuitBreaker
	listener *listen.Listener

	// Replies.
	out        speech.Output
	commands   atomic.Pointer[voicecmd.Filter]
	llm        *dispatch.LLM
	dispatcher dispatch.Dispatcher

	health *health.Handler

	mu        sync.Mutex
	cfgNow    *config.Config
	assistant config.AssistantConfig

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// New creates an App by wiring all subsystems together. cfg must have passed
// [config.Validate].
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Source == nil {
		return nil, errors.New("app: an audio source is required")
	}
	if providers.STT == nil {
		return nil, errors.New("app: an STT provider is required")
	}

	a := &App{
		cfg:        cfg,
		cfgNow:     cfg,
		assistant:  cfg.Assistant,
		providers:  providers,
		retryDelay: defaultRetryDelay,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}

	profile, err := cfg.Profile.Resolve()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.log.Info("profile selected", "profile", profile.Name)

	if err := a.initCapture(profile); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}
	if err := a.initListener(profile); err != nil {
		return nil, fmt.Errorf("app: init listener: %w", err)
	}
	a.initReplies()

	a.health = health.New([]health.Checker{
		health.Running("capture", a.supervisor.Running),
		health.BreakerClosed("stt", a.breaker),
	}, health.WithStatus(func() any { return a.Status() }))

	return a, nil
}

// initCapture builds enhance → gate → channel behind the capture supervisor.
func (a *App) initCapture(p config.Profile) error {
	a.filter = enhance.New(p.Enhance(),
		enhance.WithLogger(a.log),
		enhance.WithFailureRecorder(a.metrics),
	)

	gate, err := energy.New().NewSession(p.VAD(a.cfg.Audio.SampleRate))
	if err != nil {
		return err
	}
	a.gate = gate
	a.closers = append(a.closers, gate.Close)

	a.frames = pipeline.NewFrameChannel(p.ChannelCapacity, a.metrics)
	a.producer = pipeline.NewProducer(a.filter, gate, a.frames,
		pipeline.WithFrameRecorder(a.metrics),
		pipeline.WithProducerLogger(a.log),
	)

	stall := captureStallTimeout
	if a.cfg.Audio.Source == config.SourceWAV {
		stall = 0
	}
	a.supervisor = pipeline.NewSupervisor(pipeline.SupervisorConfig{
		Source:       a.providers.Source,
		Handler:      a.producer.Handle,
		StallTimeout: stall,
		OnRestart:    gate.Reset,
		Logger:       a.log,
	})

	if dir := a.cfg.Audio.RecordDir; dir != "" {
		path := filepath.Join(dir, "myra-"+a.now().Format("20060102-150405")+".wav")
		rec, err := wavfile.NewRecorder(a.fs, path, a.cfg.Audio.SampleRate)
		if err != nil {
			return err
		}
		a.recording = rec
		a.closers = append(a.closers, rec.Close)
		a.log.Info("recording recogniser input", "path", path)
	}
	return nil
}

func (a *App) initListener(p config.Profile) error {
	a.spotter = wakeword.New(p.Wake(a.cfg.Wake))
	a.acc = command.New(p.MinCommandWords)
	a.session = session.New(p.Session(),
		session.WithClock(a.now),
		session.WithRecorder(a.metrics),
	)

	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "stt",
		MaxFailures:  3,
		ResetTimeout: 30 * time.Second,
		Logger:       a.log,
	})

	opts := []listen.Option{
		listen.WithBreaker(a.breaker),
		listen.WithRecorder(a.metrics),
		listen.WithLogger(a.log),
		listen.WithConfig(p.Listen(a.cfg.Audio.SampleRate, a.cfg.Assistant.Language)),
	}
	if a.recording != nil {
		opts = append(opts, listen.WithTee(a.recording))
	}
	a.listener = listen.New(a.providers.STT, a.frames, a.spotter, a.acc, opts...)
	return nil
}

// initReplies builds the speech output and the command handlers.
func (a *App) initReplies() {
	asst := a.cfg.Assistant
	if a.out == nil {
		if a.providers.TTS != nil {
			player := a.providers.Player
			if player == nil {
				player = speech.LogPlayer{Logger: a.log}
			}
			a.out = speech.NewSpeaker(a.providers.TTS, player,
				speech.WithVoice(tts.VoiceProfile{ID: asst.Voice, SpeedFactor: asst.SpeedFactor}),
				speech.WithLogger(a.log),
			)
		} else {
			a.out = speech.LogOutput{Logger: a.log}
		}
	}

	a.commands.Store(voicecmd.New(asst.Name, time.Duration(asst.ExtendSeconds)*time.Second))

	chain := dispatch.Chain{dispatch.Clock{Now: a.now}}
	if a.providers.LLM != nil {
		llmBreaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "llm",
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			Logger:       a.log,
		})
		a.llm = dispatch.NewLLM(a.providers.LLM,
			dispatch.WithLLMConfig(llmConfig(asst)),
			dispatch.WithBreaker(llmBreaker),
			dispatch.WithLogger(a.log),
		)
		chain = append(chain, a.llm)
	}
	a.dispatcher = chain
}

func llmConfig(asst config.AssistantConfig) dispatch.LLMConfig {
	cfg := dispatch.DefaultLLMConfig()
	if asst.SystemPrompt != "" {
		cfg.SystemPrompt = asst.SystemPrompt
	}
	return cfg
}

// Run starts capture and the listen loop and blocks until ctx is cancelled,
// the capture source is lost, or a finite source has been played out.
// It returns nil on a clean stop.
func (a *App) Run(ctx context.Context) error {
	if err := a.supervisor.Start(); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.supervisor.Run(ctx) })

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("observability listener started", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if finite, ok := a.providers.Source.(interface{ Done() <-chan struct{} }); ok {
		g.Go(func() error {
			select {
			case <-finite.Done():
				a.log.Info("audio source finished")
				return errSourceFinished
			case <-ctx.Done():
				return nil
			}
		})
	}

	g.Go(func() error {
		a.log.Info("Myra is sleeping; say her name to wake her", "wake_word", a.spotter.Config().Primary)
		for ctx.Err() == nil {
			a.step(ctx)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errSourceFinished) {
		return err
	}
	return nil
}

// Handler returns the observability mux: /metrics, /healthz, /readyz and
// /statusz, instrumented with [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)
	return observe.Middleware(a.metrics, a.log)(mux)
}

// Status is the /statusz snapshot.
type Status struct {
	State      string  `json:"state"`
	Phase      string  `json:"phase"`
	Profile    string  `json:"profile"`
	Capturing  bool    `json:"capturing"`
	Restarts   uint64  `json:"capture_restarts"`
	Captured   uint64  `json:"frames_captured"`
	Forwarded  uint64  `json:"frames_forwarded"`
	Overflows  uint64  `json:"frame_overflows"`
	Breaker    string  `json:"stt_breaker"`
	WakeUps    int     `json:"wake_ups"`
	Commands   int     `json:"commands_processed"`
	Timeouts   int     `json:"timeouts"`
	Sleeps     int     `json:"manual_sleeps"`
	SessionAge float64 `json:"current_session_seconds"`
}

// Status returns a snapshot of the running assistant.
func (a *App) Status() Status {
	captured, forwarded := a.producer.Stats()
	st := a.session.Stats()
	a.mu.Lock()
	profile := a.cfgNow.Profile.Name
	a.mu.Unlock()
	return Status{
		State:      a.session.State().String(),
		Phase:      a.session.Phase(),
		Profile:    profile,
		Capturing:  a.supervisor.Running(),
		Restarts:   a.supervisor.Restarts(),
		Captured:   captured,
		Forwarded:  forwarded,
		Overflows:  a.frames.Overflows(),
		Breaker:    a.breaker.State().String(),
		WakeUps:    st.WakeUps,
		Commands:   st.CommandsProcessed,
		Timeouts:   st.Timeouts,
		Sleeps:     st.ManualSleeps,
		SessionAge: st.CurrentSession.Seconds(),
	}
}

// Session exposes the state machine, mainly for tests and status output.
func (a *App) Session() *session.Machine { return a.session }

// Shutdown logs the session statistics, speaks the goodbye phrase, stops
// capture and runs the closers. It respects the context deadline: if ctx
// expires before all closers finish, the remaining ones are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		st := a.session.Stats()
		captured, forwarded := a.producer.Stats()
		a.log.Info("session statistics",
			"wake_ups", st.WakeUps,
			"commands_processed", st.CommandsProcessed,
			"timeouts", st.Timeouts,
			"manual_sleeps", st.ManualSleeps,
			"total_session_time", st.TotalSessionTime+st.CurrentSession,
			"frames_captured", captured,
			"frames_forwarded", forwarded,
			"frame_overflows", a.frames.Overflows(),
			"capture_restarts", a.supervisor.Restarts(),
		)

		if err := a.supervisor.Stop(); err != nil {
			a.log.Warn("stopping capture", "err", err)
		}
		a.say(ctx, a.phrases().Goodbye)
		a.listener.Wait()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) phrases() config.AssistantConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.assistant
}
