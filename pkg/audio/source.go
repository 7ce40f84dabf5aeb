// Package audio defines the frame types and the capture abstraction used by the
// Myra voice front-end.
//
// The primary abstraction is [Source]: a capture device (or a replayed
// recording) that delivers fixed-size PCM [Frame] values on its own callback
// goroutine. Implementations live in sub-packages (audio/portaudio for live
// microphones, audio/wavfile for recorded captures) so that the core pipeline
// stays free of cgo.
//
// This package lives under pkg/ because external code is expected to implement
// [Source] for other capture backends.
package audio

import "errors"

// ErrCaptureUnavailable is returned (wrapped) by [Source.Start] when the
// capture device cannot be opened or streamed. It is the only condition that
// prevents the assistant from starting.
var ErrCaptureUnavailable = errors.New("audio: capture unavailable")

// Handler receives captured frames. It is invoked on the source's real-time
// goroutine and must never block.
type Handler func(Frame)

// Source is a capture device that delivers PCM frames to a [Handler].
//
// Implementations must be safe for concurrent use of Close with the running
// callback.
type Source interface {
	// Start opens the device and begins delivering frames to h. It returns once
	// capture is running. A device that cannot be opened yields an error
	// wrapping [ErrCaptureUnavailable].
	Start(h Handler) error

	// Close stops capture and releases the device. After Close returns h is no
	// longer invoked. Calling Close more than once is a no-op.
	Close() error
}

// Device describes a capture device as reported by the host audio API.
type Device struct {
	// Index is the position of the device in the host's device list.
	Index int

	// Name is the human-readable device name.
	Name string

	// MaxInputChannels is the number of input channels the device offers.
	MaxInputChannels int

	// DefaultSampleRate is the device's preferred sample rate in Hz.
	DefaultSampleRate float64

	// Default reports whether this is the host's default input device.
	Default bool
}
