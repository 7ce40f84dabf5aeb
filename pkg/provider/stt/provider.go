// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model or
// a streaming cloud service) and exposes a uniform streaming interface. Once a
// session is opened it accepts raw PCM audio and emits two streams of
// [Transcript] values: low-latency partials, which the wake-word spotter may
// act on early, and authoritative finals, which feed the rolling word buffer
// and the command accumulator.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional session operations that a backend
// does not implement.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The capture pipeline runs
	// at 16000.
	SampleRate int

	// Channels is the number of audio channels. Always 1 for the microphone
	// pipeline.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Keywords is a list of vocabulary hints. The wake phrases are passed
	// here so that providers with keyword boosting favour "myra" over
	// homophones.
	Keywords []KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of little-endian 16-bit PCM. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a channel of interim transcripts. Closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals returns a channel of committed transcripts. Closed when the
	// session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword boost list mid-session. Providers
	// that cannot do this return [ErrNotSupported].
	SetKeywords(keywords []KeywordBoost) error

	// Close flushes pending audio and releases all resources. After Close
	// returns the Partials and Finals channels are closed. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// handle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (model
	// missing, authentication failure, network down, or ctx cancelled). The
	// listener reports such failures as a service-unavailable result.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
