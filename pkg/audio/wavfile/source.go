// Package wavfile replays and records 16-bit PCM WAV captures.
//
// [Source] implements [audio.Source] on top of a WAV file so that a recorded
// session can be fed through the pipeline exactly as a live microphone would
// (useful for tuning enhancement profiles against far-field recordings).
// [Recorder] writes frames back out as a WAV file for offline inspection.
//
// Both operate on an [afero.Fs] so tests can use an in-memory filesystem.
package wavfile

import (
	"errors"
	"fmt"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/MrWong99/myra/pkg/audio"
)

const (
	defaultSampleRate = 16000
	defaultFrameSize  = 4096
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for configuring a [Source].
type Option func(*Source)

// WithSampleRate sets the rate frames are delivered at. The file is resampled
// (and downmixed) when its own format differs. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithFrameSize sets the number of samples per delivered frame. Defaults to 4096.
func WithFrameSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.frameSize = n
		}
	}
}

// WithRealtime paces delivery at the frame duration, as a device would.
// Without it frames are delivered as fast as the handler accepts them.
func WithRealtime(on bool) Option {
	return func(s *Source) {
		s.realtime = on
	}
}

// WithTrailingSilence appends d of zero samples after the recording so that
// downstream hangover windows and recogniser endpointing can complete.
func WithTrailingSilence(d time.Duration) Option {
	return func(s *Source) {
		s.tail = d
	}
}

// Source replays a WAV file as a stream of [audio.Frame] values.
type Source struct {
	fs         afero.Fs
	path       string
	sampleRate int
	frameSize  int
	realtime   bool
	tail       time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// NewSource creates a Source reading path from fs. The file is not opened
// until [Source.Start].
func NewSource(fs afero.Fs, path string, opts ...Option) *Source {
	s := &Source{
		fs:         fs,
		path:       path,
		sampleRate: defaultSampleRate,
		frameSize:  defaultFrameSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start decodes the file and begins delivering frames on a background
// goroutine. A missing or malformed file yields an error wrapping
// [audio.ErrCaptureUnavailable].
func (s *Source) Start(h audio.Handler) error {
	if h == nil {
		return errors.New("wavfile: handler must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("wavfile: source already started")
	}

	samples, err := s.load()
	if err != nil {
		return fmt.Errorf("%w: %w", audio.ErrCaptureUnavailable, err)
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.started = true
	go s.run(samples, h, s.stop, s.done)
	return nil
}

func (s *Source) load() ([]int16, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w", s.path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("wavfile: %q is not a valid WAV file", s.path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode %q: %w", s.path, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("wavfile: %q holds no PCM data", s.path)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = toInt16(v, depth)
	}

	conv := audio.FormatConverter{Target: audio.Format{SampleRate: s.sampleRate, Channels: 1}}
	frame := conv.Convert(audio.Frame{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	})
	return frame.Samples, nil
}

func (s *Source) run(samples []int16, h audio.Handler, stop, done chan struct{}) {
	defer close(done)

	if s.tail > 0 {
		samples = append(samples, make([]int16, int(s.tail.Seconds()*float64(s.sampleRate)))...)
	}
	frameDur := time.Duration(s.frameSize) * time.Second / time.Duration(s.sampleRate)

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	start := time.Now()
	for off, n := 0, 0; off < len(samples); off, n = off+s.frameSize, n+1 {
		if ticker != nil {
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		end := min(off+s.frameSize, len(samples))
		block := make([]int16, end-off)
		copy(block, samples[off:end])
		h(audio.Frame{
			Samples:    block,
			SampleRate: s.sampleRate,
			Channels:   1,
			Captured:   start.Add(time.Duration(n) * frameDur),
		})
	}
}

// Done is closed once every frame has been delivered or the source is closed.
// It returns nil before [Source.Start].
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Close stops delivery and waits for the replay goroutine to exit.
func (s *Source) Close() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// toInt16 rescales a decoded sample of the given bit depth to 16 bits.
func toInt16(v, depth int) int16 {
	switch {
	case depth == 16:
	case depth > 16:
		v >>= depth - 16
	default:
		v <<= 16 - depth
	}
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// intBuffer wraps mono samples for the go-audio encoder.
func intBuffer(samples []int16, sampleRate int) *goaudio.IntBuffer {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	return &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
