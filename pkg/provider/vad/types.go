package vad

// VADEvent represents a voice activity decision for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Energy is the frame energy the decision was based on.
	Energy float64
}

// Forward reports whether the frame should be passed on to the recogniser.
// Frames inside a speech segment (including its hangover tail) are forwarded;
// the frame that ends a segment and all silent frames are dropped.
func (e VADEvent) Forward() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech or a frame inside the hangover
	// window.
	VADSpeechContinue

	// VADSpeechEnd indicates the hangover window has just expired.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns the human-readable name of the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
