package audio

import (
	"math"
	"time"
)

// MaxSample is the largest magnitude an enhanced sample may take. The negative
// bound is its mirror so that clipping stays symmetric.
const MaxSample = 32767

// Frame is a single block of 16-bit PCM delivered by a capture [Source].
// Frames are the atomic unit of audio transport: captured by the device
// callback, enhanced, gated, queued and finally handed to the STT provider.
//
// A Frame is immutable once produced. Producers must not reuse Samples after
// handing the frame on.
type Frame struct {
	// Samples holds interleaved signed 16-bit PCM.
	Samples []int16

	// SampleRate in Hz (16000 for the recognisers used here).
	SampleRate int

	// Channels: 1 for mono microphone capture.
	Channels int

	// Captured is the wall-clock instant the block was delivered by the device.
	Captured time.Time
}

// Duration reports how much audio the frame holds.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	n := len(f.Samples) / f.Channels
	return time.Duration(n) * time.Second / time.Duration(f.SampleRate)
}

// EnhancedFrame is a [Frame] after the enhancement stage. Samples are always
// within [-MaxSample, MaxSample] and Energy holds their RMS.
type EnhancedFrame struct {
	Frame

	// Energy is the root-mean-square amplitude of Samples.
	Energy float64
}

// RMS returns the root-mean-square amplitude of samples, or 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
