package tts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

// VoiceProfile selects and tunes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier ("en+f3" for espeak-ng, a
	// speaker name or reference WAV for Coqui). Empty selects the default.
	ID string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means
	// default.
	SpeedFactor float64
}

// Format is the audio format of a synthesised WAV file.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// InspectWAV checks that data is a playable PCM WAV file and returns its
// format.
func InspectWAV(data []byte) (Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Format{}, errors.New("tts: not a valid WAV file")
	}
	if dec.WavAudioFormat != 1 {
		return Format{}, fmt.Errorf("tts: unsupported WAV encoding %d, want PCM", dec.WavAudioFormat)
	}
	return Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, nil
}
