// Command myra is the always-on voice front-end: it listens for the wake
// word, collects a spoken command and answers it out loud.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/spf13/afero"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/myra/internal/app"
	"github.com/MrWong99/myra/internal/config"
	"github.com/MrWong99/myra/internal/observe"
	"github.com/MrWong99/myra/internal/speech"
	"github.com/MrWong99/myra/pkg/audio/portaudio"
	"github.com/MrWong99/myra/pkg/audio/wavfile"
	"github.com/MrWong99/myra/pkg/provider/llm"
	"github.com/MrWong99/myra/pkg/provider/llm/anyllm"
	"github.com/MrWong99/myra/pkg/provider/llm/openai"
	"github.com/MrWong99/myra/pkg/provider/stt"
	"github.com/MrWong99/myra/pkg/provider/stt/deepgram"
	"github.com/MrWong99/myra/pkg/provider/stt/whisper"
	"github.com/MrWong99/myra/pkg/provider/tts"
	"github.com/MrWong99/myra/pkg/provider/tts/coqui"
	"github.com/MrWong99/myra/pkg/provider/tts/espeak"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

// flags holds the command-line overrides applied on top of the config file
// and the environment.
type flags struct {
	configPath  string
	envFile     string
	profile     string
	logLevel    string
	device      string
	wavPath     string
	listDevices bool
	showVersion bool
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	var f flags
	flag.StringVarP(&f.configPath, "config", "c", "myra.yaml", "path to the YAML configuration file")
	flag.StringVarP(&f.envFile, "env", "e", ".env", "dotenv file with MYRA_* secrets (optional)")
	flag.StringVarP(&f.profile, "profile", "p", "", "tuning profile: "+fmt.Sprint(config.ProfileNames()))
	flag.StringVarP(&f.logLevel, "log-level", "l", "", "log level: debug, info, warn or error")
	flag.StringVarP(&f.device, "device", "d", "", "substring of the input device name")
	flag.StringVar(&f.wavPath, "wav", "", "replay this WAV file instead of capturing from the microphone")
	flag.BoolVar(&f.listDevices, "list-devices", false, "list audio input devices and exit")
	flag.BoolVarP(&f.showVersion, "version", "v", false, "print the version and exit")
	flag.Parse()

	if f.showVersion {
		fmt.Println("myra", version)
		return 0
	}
	if f.listDevices {
		return listDevices()
	}

	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "myra: load %s: %v\n", f.envFile, err)
		return 1
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := config.LoadWith(f.configPath, f.apply)
	fromFile := err == nil
	if errors.Is(err, os.ErrNotExist) && !flag.CommandLine.Changed("config") {
		cfg, err = defaults(f.apply)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "myra: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("myra starting",
		"version", version,
		"config", f.configPath,
		"profile", cfg.Profile.Name,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version, Profile: cfg.Profile.Name})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	providers, closers, err := buildProviders(cfg, reg)
	for _, c := range closers {
		defer c.Close()
	}
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers,
		app.WithLogger(logger),
		app.WithLevelVar(&level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	if fromFile {
		watcher, err := config.NewWatcher(f.configPath, application.ApplyConfig,
			config.WithPrepare(f.apply),
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			slog.Warn("config hot-reload disabled", "err", err)
		} else {
			defer watcher.Stop()
			go reloadOnHangup(ctx, watcher)
		}
	}

	printStartupSummary(cfg)

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	return 0
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := w.Reload(); err != nil {
				slog.Warn("SIGHUP: keeping previous config", "err", err)
			}
		}
	}
}

// apply layers the environment and the command-line flags onto a freshly
// decoded config. It runs on every (re)load.
func (f flags) apply(cfg *config.Config) {
	config.ApplyEnv(cfg, os.LookupEnv)
	if f.profile != "" {
		cfg.Profile.Name = f.profile
	}
	if f.logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(f.logLevel)
	}
	if f.device != "" {
		cfg.Audio.Device = f.device
	}
	if f.wavPath != "" {
		cfg.Audio.Source = config.SourceWAV
		cfg.Audio.WAVPath = f.wavPath
	}
}

// defaults builds the config used when no config file exists.
func defaults(prepare func(*config.Config)) (*config.Config, error) {
	cfg := &config.Config{}
	prepare(cfg)
	config.ApplyDefaults(cfg)
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = config.DefaultListenAddr
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func listDevices() int {
	devices, err := portaudio.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "myra: %v\n", err)
		return 1
	}
	for _, d := range devices {
		mark := " "
		if d.Default {
			mark = "*"
		}
		fmt.Printf("%s %3d  %-40s  %d ch  %.0f Hz\n", mark, d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with Myra
// into reg. Factories read their settings from the config entry; cfg
// supplies the shared audio and assistant settings.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	rate := cfg.Audio.SampleRate
	lang := cfg.Assistant.Language

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		model := entry.Model
		if model == "" {
			model = entry.Option("model_path")
		}
		return whisper.New(model,
			whisper.WithLanguage(lang),
			whisper.WithSampleRate(rate),
			whisper.WithSilenceThresholdMs(entry.IntOption("silence_ms", 700)),
			whisper.WithLogger(slog.Default()),
		)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{
			deepgram.WithLanguage(lang),
			deepgram.WithSampleRate(rate),
			deepgram.WithEndpointingMs(entry.IntOption("endpointing_ms", 300)),
		}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []espeak.Option{espeak.WithVoice(lang)}
		if bin := entry.Option("binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if wpm := entry.IntOption("wpm", 0); wpm > 0 {
			opts = append(opts, espeak.WithWordsPerMinute(wpm))
		}
		p := espeak.New(opts...)
		if err := p.Available(); err != nil {
			return nil, err
		}
		return p, nil
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithLanguage(lang)}
		if mode := entry.Option("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if voice := entry.Option("default_voice"); voice != "" {
			opts = append(opts, coqui.WithDefaultVoice(voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the official SDK; a base URL turns it into a
	// client for any OpenAI-compatible server.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, backend := range []string{
		"ollama", "llamacpp", "llamafile",
		"anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	for _, kind := range []string{"stt", "tts", "llm"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the audio source and every provider named in
// cfg. The returned closers must be closed on exit even when err is set.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []io.Closer, error) {
	ps := &app.Providers{}
	var closers []io.Closer

	switch cfg.Audio.Source {
	case config.SourceWAV:
		ps.Source = wavfile.NewSource(afero.NewOsFs(), cfg.Audio.WAVPath,
			wavfile.WithSampleRate(cfg.Audio.SampleRate),
			wavfile.WithFrameSize(cfg.Audio.FramesPerBuffer),
			wavfile.WithRealtime(true),
			wavfile.WithTrailingSilence(3*time.Second),
		)
	default:
		ps.Source = portaudio.New(
			portaudio.WithSampleRate(cfg.Audio.SampleRate),
			portaudio.WithFramesPerBuffer(cfg.Audio.FramesPerBuffer),
			portaudio.WithDevice(cfg.Audio.Device),
		)
	}
	slog.Info("audio source selected", "source", cfg.Audio.Source, "device", cfg.Audio.Device)

	sttp, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, closers, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if c, ok := sttp.(io.Closer); ok {
		closers = append(closers, c)
	}
	ps.STT = sttp
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("unknown tts provider; replies will only be logged", "name", name)
		case err != nil:
			slog.Warn("tts unavailable; replies will only be logged", "name", name, "err", err)
		default:
			ps.TTS = p
			ps.Player = speech.NewBeepPlayer(0)
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("unknown llm provider; only session commands and clock questions will be answered", "name", name)
		case err != nil:
			return nil, closers, fmt.Errorf("create llm provider %q: %w", name, err)
		default:
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
		}
	}

	return ps, closers, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Myra  -  startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Profile", cfg.Profile.Name)
	printRow("Audio", audioSummary(cfg.Audio))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func audioSummary(a config.AudioConfig) string {
	if a.Source == config.SourceWAV {
		return "wav " + a.WAVPath
	}
	if a.Device != "" {
		return a.Device
	}
	return "default input"
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

