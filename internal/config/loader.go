package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "deepgram"},
	"tts": {"espeak", "coqui"},
	"llm": {"ollama", "llamacpp", "llamafile", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":9464"
	DefaultSampleRate      = 16000
	DefaultFramesPerBuffer = 320
	DefaultName            = "Myra"
	DefaultLanguage        = "en"
	DefaultGreeting        = "Yes? How can I help you?"
	DefaultWarning         = "I'll go to sleep in %d seconds if you don't need anything else."
	DefaultTimeoutNotice   = "I haven't heard from you for a while. Going back to sleep."
	DefaultNotHeard        = "I didn't catch that. Please try again!"
	DefaultFailure         = "Sorry, I can't answer that right now."
	DefaultGoodbye         = "Goodbye!"
	DefaultExtendSeconds   = 30
	DefaultLLMModel        = "llama3.2:1b"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is [Load] with a hook that runs on the decoded config before
// defaults and validation, typically [ApplyEnv] plus command-line overrides.
func LoadWith(path string, prepare func(*Config)) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f, prepare)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	return decode(r, nil)
}

// decode runs prepare (if any) between decoding and defaulting.
func decode(r io.Reader, prepare func(*Config)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if prepare != nil {
		prepare(cfg)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every empty field that has a sensible default. The
// profile is not resolved here; see [ProfileConfig.Resolve].
func ApplyDefaults(cfg *Config) {
	def := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	def(&cfg.Audio.Source, SourcePortAudio)
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.FramesPerBuffer == 0 {
		cfg.Audio.FramesPerBuffer = DefaultFramesPerBuffer
	}
	def(&cfg.Profile.Name, ProfileDefault)

	def(&cfg.Providers.STT.Name, "whisper")
	def(&cfg.Providers.TTS.Name, "espeak")
	def(&cfg.Providers.LLM.Name, "ollama")
	if cfg.Providers.LLM.Name == "ollama" {
		def(&cfg.Providers.LLM.Model, DefaultLLMModel)
	}

	a := &cfg.Assistant
	def(&a.Name, DefaultName)
	def(&a.Language, DefaultLanguage)
	def(&a.Greeting, DefaultGreeting)
	def(&a.Warning, DefaultWarning)
	def(&a.TimeoutNotice, DefaultTimeoutNotice)
	def(&a.NotHeard, DefaultNotHeard)
	def(&a.Failure, DefaultFailure)
	def(&a.Goodbye, DefaultGoodbye)
	if a.ExtendSeconds == 0 {
		a.ExtendSeconds = DefaultExtendSeconds
	}
}

// ApplyEnv overrides secrets and a few operational fields from MYRA_*
// environment variables. lookup is normally os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("MYRA_STT_API_KEY", &cfg.Providers.STT.APIKey)
	str("MYRA_TTS_API_KEY", &cfg.Providers.TTS.APIKey)
	str("MYRA_LLM_API_KEY", &cfg.Providers.LLM.APIKey)
	str("MYRA_LLM_BASE_URL", &cfg.Providers.LLM.BaseURL)
	str("MYRA_PROFILE", &cfg.Profile.Name)
	str("MYRA_AUDIO_DEVICE", &cfg.Audio.Device)
	if v, ok := lookup("MYRA_LOG_LEVEL"); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	switch cfg.Audio.Source {
	case SourcePortAudio:
	case SourceWAV:
		if cfg.Audio.WAVPath == "" {
			errs = append(errs, errors.New("audio.wav_path is required when audio.source is wav"))
		}
	default:
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: portaudio, wav", cfg.Audio.Source))
	}
	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is too low; at least 8000 Hz is required", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", cfg.Audio.FramesPerBuffer))
	}

	p, err := cfg.Profile.Resolve()
	if err != nil {
		errs = append(errs, err)
	} else {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("profile %q: %w", p.Name, err))
		}
		if err := p.Wake(cfg.Wake).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("wake: %w", err))
		}
	}

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.STT.Name == "deepgram" && cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt is deepgram but no api_key is set; set MYRA_STT_API_KEY")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; only session commands and clock questions will be answered")
	}

	a := cfg.Assistant
	if a.SpeedFactor != 0 && (a.SpeedFactor < 0.5 || a.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("assistant.speed_factor %.2f is out of range [0.5, 2.0]", a.SpeedFactor))
	}
	if a.ExtendSeconds < 0 {
		errs = append(errs, fmt.Errorf("assistant.extend_seconds must be >= 0, got %d", a.ExtendSeconds))
	}
	if a.Warning != "" && strings.Count(a.Warning, "%d") > 1 {
		errs = append(errs, errors.New("assistant.warning may contain at most one %d"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
