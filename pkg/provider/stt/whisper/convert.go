package whisper

import "github.com/MrWong99/myra/pkg/audio"

// pcmToFloat32 decodes little-endian 16-bit PCM, downmixes it to mono and
// scales every sample into [-1.0, 1.0), the input format whisper.cpp expects.
// A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte, channels int) []float32 {
	samples := audio.DownmixToMono(audio.PCMToSamples(pcm), channels)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
