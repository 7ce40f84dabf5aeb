package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/myra/internal/enhance"
	"github.com/MrWong99/myra/internal/listen"
	"github.com/MrWong99/myra/internal/session"
	"github.com/MrWong99/myra/internal/wakeword"
	"github.com/MrWong99/myra/pkg/provider/vad"
)

// Profile names.
const (
	ProfileDefault       = "default"
	ProfileLongDistance  = "long-distance"
	ProfileUltraDistance = "ultra-distance"
	ProfileFast          = "fast"
)

// Profile is a fully resolved set of numeric tunables for every stage of
// the front-end.
type Profile struct {
	Name string

	GateThreshold      float64
	Gain               float64
	CompressionDivisor float64
	PreemphasisAlpha   float64
	HighpassAlpha      float64
	Highpass           bool

	ActivityThreshold float64
	Hangover          time.Duration

	ChannelCapacity int

	TokenThreshold    float64
	PhoneticThreshold float64
	PhraseThreshold   float64
	PartialThreshold  float64
	RollingWindow     int

	MinCommandWords int

	WakeTimeout    time.Duration
	CommandTimeout time.Duration
	SessionTimeout time.Duration
	WarningWindow  time.Duration
}

var defaultProfile = Profile{
	Name:               ProfileDefault,
	GateThreshold:      200,
	Gain:               2.5,
	CompressionDivisor: 16384,
	PreemphasisAlpha:   0.97,
	HighpassAlpha:      0.95,
	ActivityThreshold:  300,
	Hangover:           2 * time.Second,
	ChannelCapacity:    50,
	TokenThreshold:     0.6,
	PhoneticThreshold:  0.7,
	PhraseThreshold:    0.6,
	PartialThreshold:   0.8,
	RollingWindow:      10,
	MinCommandWords:    2,
	WakeTimeout:        10 * time.Second,
	CommandTimeout:     10 * time.Second,
	SessionTimeout:     30 * time.Second,
	WarningWindow:      5 * time.Second,
}

// Profiles returns the built-in named profiles.
func Profiles() map[string]Profile {
	long := defaultProfile
	long.Name = ProfileLongDistance
	long.Hangover = 3 * time.Second
	long.ChannelCapacity = 100
	long.WakeTimeout = 15 * time.Second
	long.CommandTimeout = 20 * time.Second

	ultra := defaultProfile
	ultra.Name = ProfileUltraDistance
	ultra.GateThreshold = 150
	ultra.Gain = 3.5
	ultra.CompressionDivisor = 10000
	ultra.Highpass = true
	ultra.ActivityThreshold = 250
	ultra.Hangover = 4 * time.Second
	ultra.ChannelCapacity = 200
	ultra.WakeTimeout = 20 * time.Second
	ultra.CommandTimeout = 15 * time.Second

	fast := defaultProfile
	fast.Name = ProfileFast
	fast.SessionTimeout = 45 * time.Second
	fast.WarningWindow = 10 * time.Second

	return map[string]Profile{
		ProfileDefault:       defaultProfile,
		ProfileLongDistance:  long,
		ProfileUltraDistance: ultra,
		ProfileFast:          fast,
	}
}

// ProfileNames returns the built-in profile names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, 4)
	for n := range Profiles() {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// ProfileConfig is the YAML form of a profile: a base name plus optional
// overrides. Nil fields keep the named profile's value.
type ProfileConfig struct {
	Name string `yaml:"name"`

	GateThreshold      *float64 `yaml:"gate_threshold"`
	Gain               *float64 `yaml:"gain"`
	CompressionDivisor *float64 `yaml:"compression_divisor"`
	PreemphasisAlpha   *float64 `yaml:"preemphasis_alpha"`
	HighpassAlpha      *float64 `yaml:"highpass_alpha"`
	Highpass           *bool    `yaml:"highpass"`

	ActivityThreshold *float64 `yaml:"activity_threshold"`
	HangoverSeconds   *float64 `yaml:"hangover_seconds"`

	ChannelCapacity *int `yaml:"channel_capacity"`

	TokenThreshold    *float64 `yaml:"token_threshold"`
	PhoneticThreshold *float64 `yaml:"phonetic_threshold"`
	PhraseThreshold   *float64 `yaml:"phrase_threshold"`
	PartialThreshold  *float64 `yaml:"partial_threshold"`
	RollingWindowK    *int     `yaml:"rolling_window_k"`

	MinCommandWords *int `yaml:"min_command_words"`

	WakeTimeoutSeconds    *float64 `yaml:"wake_timeout_seconds"`
	CommandTimeoutSeconds *float64 `yaml:"command_timeout_seconds"`
	SessionTimeoutSeconds *float64 `yaml:"session_timeout_seconds"`
	WarningWindowSeconds  *float64 `yaml:"warning_window_seconds"`
}

// Resolve merges the overrides onto the named base profile. An empty name
// selects "default".
func (pc ProfileConfig) Resolve() (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(pc.Name))
	if name == "" {
		name = ProfileDefault
	}
	p, ok := Profiles()[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile.name %q is unknown; valid values: %s", pc.Name, strings.Join(ProfileNames(), ", "))
	}

	set(&p.GateThreshold, pc.GateThreshold)
	set(&p.Gain, pc.Gain)
	set(&p.CompressionDivisor, pc.CompressionDivisor)
	set(&p.PreemphasisAlpha, pc.PreemphasisAlpha)
	set(&p.HighpassAlpha, pc.HighpassAlpha)
	set(&p.Highpass, pc.Highpass)
	set(&p.ActivityThreshold, pc.ActivityThreshold)
	setSeconds(&p.Hangover, pc.HangoverSeconds)
	set(&p.ChannelCapacity, pc.ChannelCapacity)
	set(&p.TokenThreshold, pc.TokenThreshold)
	set(&p.PhoneticThreshold, pc.PhoneticThreshold)
	set(&p.PhraseThreshold, pc.PhraseThreshold)
	set(&p.PartialThreshold, pc.PartialThreshold)
	set(&p.RollingWindow, pc.RollingWindowK)
	set(&p.MinCommandWords, pc.MinCommandWords)
	setSeconds(&p.WakeTimeout, pc.WakeTimeoutSeconds)
	setSeconds(&p.CommandTimeout, pc.CommandTimeoutSeconds)
	setSeconds(&p.SessionTimeout, pc.SessionTimeoutSeconds)
	setSeconds(&p.WarningWindow, pc.WarningWindowSeconds)
	return p, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setSeconds(dst *time.Duration, src *float64) {
	if src != nil {
		*dst = time.Duration(*src * float64(time.Second))
	}
}

// Validate reports every value that no stage can work with.
func (p Profile) Validate() error {
	var errs []error
	if err := p.Enhance().Validate(); err != nil {
		errs = append(errs, err)
	}
	if p.ActivityThreshold < 0 {
		errs = append(errs, fmt.Errorf("activity_threshold must be >= 0, got %g", p.ActivityThreshold))
	}
	if p.Hangover < 0 {
		errs = append(errs, fmt.Errorf("hangover_seconds must be >= 0, got %s", p.Hangover))
	}
	if p.ChannelCapacity < 1 {
		errs = append(errs, fmt.Errorf("channel_capacity must be >= 1, got %d", p.ChannelCapacity))
	}
	if p.MinCommandWords < 1 {
		errs = append(errs, fmt.Errorf("min_command_words must be >= 1, got %d", p.MinCommandWords))
	}
	if p.WakeTimeout <= 0 || p.CommandTimeout <= 0 {
		errs = append(errs, errors.New("wake_timeout_seconds and command_timeout_seconds must be positive"))
	}
	if err := p.Session().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Enhance returns the enhancement filter settings.
func (p Profile) Enhance() enhance.Config {
	return enhance.Config{
		GateThreshold:      p.GateThreshold,
		Gain:               p.Gain,
		CompressionDivisor: p.CompressionDivisor,
		PreemphasisAlpha:   p.PreemphasisAlpha,
		Highpass:           p.Highpass,
		HighpassAlpha:      p.HighpassAlpha,
	}
}

// VAD returns the voice-activity gate settings.
func (p Profile) VAD(sampleRate int) vad.Config {
	return vad.Config{
		SampleRate:        sampleRate,
		ActivityThreshold: p.ActivityThreshold,
		Hangover:          p.Hangover,
	}
}

// Wake returns the spotter settings with the wake table taken from w.
func (p Profile) Wake(w WakeConfig) wakeword.Config {
	cfg := wakeword.DefaultConfig()
	if len(w.Patterns) > 0 {
		cfg.Patterns = w.Patterns
	}
	if w.Primary != "" {
		cfg.Primary = w.Primary
	}
	if w.Phonetic != nil {
		cfg.Phonetic = *w.Phonetic
	}
	cfg.TokenThreshold = p.TokenThreshold
	cfg.PhoneticThreshold = p.PhoneticThreshold
	cfg.PhraseThreshold = p.PhraseThreshold
	cfg.PartialThreshold = p.PartialThreshold
	cfg.Window = p.RollingWindow
	return cfg
}

// Session returns the session timing with auto-sleep on.
func (p Profile) Session() session.Config {
	return session.Config{
		Timeout:       p.SessionTimeout,
		WarningWindow: p.WarningWindow,
		AutoSleep:     true,
	}
}

// Listen returns the per-phase listener settings.
func (p Profile) Listen(sampleRate int, language string) listen.Config {
	return listen.Config{
		SampleRate:     sampleRate,
		Language:       language,
		WakeTimeout:    p.WakeTimeout,
		CommandTimeout: p.CommandTimeout,
	}
}
