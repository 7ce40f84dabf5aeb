// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis engine (a local espeak-ng binary or
// a Coqui TTS server) and renders one utterance at a time into a complete WAV
// file. Utterances spoken by the assistant are short (a greeting, a warning,
// the answer to a command), so batch synthesis keeps playback simple.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by Synthesize for blank input.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns a RIFF/WAVE
	// file holding 16-bit PCM. voice may be the zero value to use the
	// provider's default voice.
	//
	// Returns an error if synthesis fails or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
