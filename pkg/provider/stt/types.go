package stt

import "time"

// Transcript is a speech-to-text result. Partial and final results share
// this type; IsFinal tells them apart.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	// Partials may be superseded by later partials; finals are append-only.
	IsFinal bool

	// Confidence is the overall confidence (0.0–1.0). Zero when the provider
	// does not report one.
	Confidence float64

	// Words contains per-word detail when available.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint for providers with keyword boosting.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Myra").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
