// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Audio: mock.WAV(make([]int16, 1600), 16000)}
//	wav, _ := p.Synthesize(ctx, "hello", tts.VoiceProfile{})
package mock

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/MrWong99/myra/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize. Nil returns a short silent WAV.
	Audio []byte

	// SynthesizeErr, if non-nil, is returned instead of audio.
	SynthesizeErr error

	// SynthesizeCalls records every call in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Audio or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	if p.Audio == nil {
		return WAV(make([]int16, 160), 16000), nil
	}
	return p.Audio, nil
}

// Texts returns the text of every Synthesize call. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

var _ tts.Provider = (*Provider)(nil)

// WAV encodes mono 16-bit samples as a minimal RIFF/WAVE file.
func WAV(samples []int16, sampleRate int) []byte {
	dataSize := uint32(len(samples) * 2)
	le := binary.LittleEndian
	buf := make([]byte, 44, 44+dataSize)

	copy(buf[0:], "RIFF")
	le.PutUint32(buf[4:], 36+dataSize)
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	le.PutUint32(buf[16:], 16)
	le.PutUint16(buf[20:], 1) // PCM
	le.PutUint16(buf[22:], 1) // mono
	le.PutUint32(buf[24:], uint32(sampleRate))
	le.PutUint32(buf[28:], uint32(sampleRate*2))
	le.PutUint16(buf[32:], 2)
	le.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	le.PutUint32(buf[40:], dataSize)

	for _, s := range samples {
		buf = le.AppendUint16(buf, uint16(s))
	}
	return buf
}
