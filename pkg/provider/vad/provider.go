// Package vad defines the Engine interface for voice-activity gating backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session keeps its own state (the time of
// the last active frame, smoothing history) so that independent streams never
// influence one another.
//
// VAD is synchronous: ProcessFrame returns immediately with a decision, which
// makes it suitable for the real-time capture callback that gates STT input.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"time"

	"github.com/MrWong99/myra/pkg/audio"
)

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// ActivityThreshold is the RMS energy above which a frame counts as speech.
	// Expressed in 16-bit sample units (e.g. 300).
	ActivityThreshold float64

	// Hangover is how long frames keep being forwarded after the last active
	// frame, so that the trailing end of an utterance is not truncated.
	Hangover time.Duration
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Reset clears the detection state without closing the session.
type SessionHandle interface {
	// ProcessFrame classifies one enhanced frame. The frame's capture timestamp
	// is the session's notion of "now".
	//
	// This method is called on the real-time capture path; it must not block.
	ProcessFrame(frame audio.EnhancedFrame) (VADEvent, error)

	// Reset clears all accumulated detection state without closing the session.
	Reset()

	// Close releases resources held by the session. Calling ProcessFrame after
	// Close is undefined behaviour.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session configured by cfg. Returns an error when the
	// configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
