// Package espeak provides an offline TTS provider that shells out to the
// espeak-ng binary. It implements the tts.Provider interface.
//
// The text is passed on stdin and the WAV file is read from stdout, so no
// temporary files are involved:
//
//	espeak-ng --stdout -v en+f3 -s 170 -a 200
package espeak

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/myra/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultBinary    = "espeak-ng"
	defaultVoice     = "en+f3"
	defaultWPM       = 170
	defaultAmplitude = 200
)

// runFunc executes name with args, feeding stdin, and returns stdout.
type runFunc func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBinary sets the executable. Defaults to "espeak-ng"; "espeak" works
// too.
func WithBinary(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.binary = path
		}
	}
}

// WithVoice sets the default voice, e.g. "en-us" or "en+f3".
func WithVoice(voice string) Option {
	return func(p *Provider) {
		if voice != "" {
			p.voice = voice
		}
	}
}

// WithWordsPerMinute sets the base speaking rate. Defaults to 170.
func WithWordsPerMinute(wpm int) Option {
	return func(p *Provider) {
		if wpm > 0 {
			p.wpm = wpm
		}
	}
}

// WithAmplitude sets the output amplitude (0-200). Defaults to 200.
func WithAmplitude(a int) Option {
	return func(p *Provider) {
		if a >= 0 && a <= 200 {
			p.amplitude = a
		}
	}
}

// Provider synthesises speech with a local espeak-ng installation.
// It is safe for concurrent use; every call runs its own process.
type Provider struct {
	binary    string
	voice     string
	wpm       int
	amplitude int
	run       runFunc
}

// New creates a Provider. The binary is not looked up until the first
// Synthesize call; use [Provider.Available] to check up front.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary:    defaultBinary,
		voice:     defaultVoice,
		wpm:       defaultWPM,
		amplitude: defaultAmplitude,
		run:       runCommand,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Available reports whether the configured binary can be found.
func (p *Provider) Available() error {
	if _, err := exec.LookPath(p.binary); err != nil {
		return fmt.Errorf("espeak: %w", err)
	}
	return nil
}

// Synthesize runs espeak-ng and returns its WAV output.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	out, err := p.run(ctx, []byte(text), p.binary, p.args(voice)...)
	if err != nil {
		return nil, fmt.Errorf("espeak: %w", err)
	}
	if _, err := tts.InspectWAV(out); err != nil {
		return nil, fmt.Errorf("espeak: %w", err)
	}
	return out, nil
}

func (p *Provider) args(voice tts.VoiceProfile) []string {
	v := voice.ID
	if v == "" {
		v = p.voice
	}
	wpm := p.wpm
	if voice.SpeedFactor > 0 {
		wpm = int(float64(wpm) * voice.SpeedFactor)
	}
	return []string{
		"--stdout",
		"-v", v,
		"-s", strconv.Itoa(wpm),
		"-a", strconv.Itoa(p.amplitude),
	}
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}
