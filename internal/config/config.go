// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the Myra voice front-end.
package config

import (
	"log/slog"

	"github.com/MrWong99/myra/internal/wakeword"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to the slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Audio source kinds.
const (
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Profile   ProfileConfig   `yaml:"profile"`
	Wake      WakeConfig      `yaml:"wake"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig holds logging and the observability listener.
type ServerConfig struct {
	// ListenAddr serves /metrics, /healthz, /readyz and /statusz. Empty
	// disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects and tunes the capture source.
type AudioConfig struct {
	// Source is "portaudio" (live microphone) or "wav" (replay WAVPath).
	Source string `yaml:"source"`

	// Device is a case-insensitive substring of the input device name.
	// Empty uses the host default.
	Device string `yaml:"device"`

	SampleRate      int `yaml:"sample_rate"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`

	// WAVPath is the recording replayed when Source is "wav".
	WAVPath string `yaml:"wav_path"`

	// RecordDir, when set, receives a WAV dump of the enhanced audio sent to
	// the recogniser, one file per run.
	RecordDir string `yaml:"record_dir"`
}

// WakeConfig overrides the built-in wake table. Empty fields keep the
// defaults from the wakeword package.
type WakeConfig struct {
	Patterns []wakeword.Pattern `yaml:"patterns"`
	Primary  string             `yaml:"primary"`
	Phonetic *wakeword.Phonetic `yaml:"phonetic"`
}

// ProvidersConfig declares the external engines. Each entry is resolved by
// name through the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	Name string `yaml:"name"`

	// APIKey authenticates against hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint, e.g. a local
	// Ollama or Coqui server.
	BaseURL string `yaml:"base_url"`

	// Model selects the model (LLM name, Deepgram model, whisper model file).
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Option returns the string option key, or "" if it is absent or not a
// string.
func (e ProviderEntry) Option(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// IntOption returns the integer option key, or def if it is absent. YAML
// decodes plain numbers as int; floats are truncated.
func (e ProviderEntry) IntOption(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// AssistantConfig holds the persona and the phrases spoken by the
// front-end itself.
type AssistantConfig struct {
	// Name is the assistant's name; session commands accept it as a
	// trailing address ("goodbye myra").
	Name     string `yaml:"name"`
	Language string `yaml:"language"`

	// Voice is the TTS voice ID; SpeedFactor scales the speaking rate.
	Voice       string  `yaml:"voice"`
	SpeedFactor float64 `yaml:"speed_factor"`

	// SystemPrompt instructs the language model answering commands.
	SystemPrompt string `yaml:"system_prompt"`

	// Greeting is spoken after a wake with no command attached. Empty plays
	// only the chime.
	Greeting string `yaml:"greeting"`

	// Warning is spoken once before the session times out. %d is replaced
	// with the seconds remaining.
	Warning string `yaml:"warning"`

	// TimeoutNotice is spoken when the session times out.
	TimeoutNotice string `yaml:"timeout_notice"`

	// NotHeard is spoken when a command listen ends with nothing heard.
	NotHeard string `yaml:"not_heard"`

	// Failure is spoken when the dispatcher cannot produce a reply.
	Failure string `yaml:"failure"`

	// Goodbye is spoken on shutdown.
	Goodbye string `yaml:"goodbye"`

	// ExtendSeconds is how long the "give me more time" command adds.
	ExtendSeconds int `yaml:"extend_seconds"`

	// Chime plays a short tone on wake.
	Chime *bool `yaml:"chime"`
}

// ChimeEnabled reports whether the wake chime is on. Defaults to true.
func (a AssistantConfig) ChimeEnabled() bool {
	return a.Chime == nil || *a.Chime
}
