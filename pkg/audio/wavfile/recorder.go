package wavfile

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/MrWong99/myra/pkg/audio"
)

// Recorder appends mono 16-bit frames to a WAV file. It is safe for
// concurrent use, although the pipeline only writes from the consumer goroutine.
type Recorder struct {
	mu         sync.Mutex
	file       afero.File
	enc        *wav.Encoder
	sampleRate int
	samples    int
}

// NewRecorder creates path on fs (and its parent directory) and prepares a
// WAV encoder at sampleRate.
func NewRecorder(fs afero.Fs, path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, errors.New("wavfile: sample rate must be positive")
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wavfile: create directory for %q: %w", path, err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: create %q: %w", path, err)
	}
	return &Recorder{
		file:       f,
		enc:        wav.NewEncoder(f, sampleRate, 16, 1, 1),
		sampleRate: sampleRate,
	}, nil
}

// Write appends the frame's samples. Frames at a different sample rate are
// resampled; multi-channel frames are downmixed.
func (r *Recorder) Write(f audio.Frame) error {
	samples := f.Samples
	if f.Channels > 1 {
		samples = audio.DownmixToMono(samples, f.Channels)
	}
	if f.SampleRate > 0 && f.SampleRate != r.sampleRate {
		samples = audio.ResampleMono(samples, f.SampleRate, r.sampleRate)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return errors.New("wavfile: recorder closed")
	}
	if err := r.enc.Write(intBuffer(samples, r.sampleRate)); err != nil {
		return fmt.Errorf("wavfile: write: %w", err)
	}
	r.samples += len(samples)
	return nil
}

// Samples reports how many samples have been written so far.
func (r *Recorder) Samples() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples
}

// Close finalises the WAV header and closes the file. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return nil
	}
	encErr := r.enc.Close()
	fileErr := r.file.Close()
	r.enc = nil
	return errors.Join(encErr, fileErr)
}
