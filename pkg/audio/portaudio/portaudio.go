// Package portaudio provides a live microphone [audio.Source] backed by the
// PortAudio C library.
//
// The stream is opened in callback mode: PortAudio invokes the source on its
// own real-time thread once per block of FramesPerBuffer samples. The source
// copies the block into a fresh [audio.Frame] (PortAudio reuses its buffer)
// and hands it to the registered handler, which must not block.
//
// Typical usage:
//
//	src := portaudio.New(portaudio.WithSampleRate(16000), portaudio.WithDevice("USB"))
//	if err := src.Start(handler); err != nil {
//	    return err // wraps audio.ErrCaptureUnavailable
//	}
//	defer src.Close()
package portaudio

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/myra/pkg/audio"
)

const (
	defaultSampleRate      = 16000
	defaultFramesPerBuffer = 4096
)

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Option is a functional option for configuring a [Source].
type Option func(*Source)

// WithSampleRate sets the capture sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithFramesPerBuffer sets how many samples each callback delivers.
// Defaults to 4096.
func WithFramesPerBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.framesPerBuffer = n
		}
	}
}

// WithDevice selects the input device whose name contains name
// (case-insensitive). An empty name selects the host default.
func WithDevice(name string) Option {
	return func(s *Source) {
		s.device = name
	}
}

// Source captures mono 16-bit PCM from a PortAudio input device.
type Source struct {
	sampleRate      int
	framesPerBuffer int
	device          string

	mu      sync.Mutex
	stream  *pa.Stream
	handler audio.Handler
	closed  bool
}

// New creates a Source. The device is not opened until [Source.Start].
func New(opts ...Option) *Source {
	s := &Source{
		sampleRate:      defaultSampleRate,
		framesPerBuffer: defaultFramesPerBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start initialises PortAudio, opens the configured input device and starts
// the callback stream. Any failure is wrapped with [audio.ErrCaptureUnavailable].
func (s *Source) Start(h audio.Handler) error {
	if h == nil {
		return errors.New("portaudio: handler must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return errors.New("portaudio: source already started")
	}

	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("%w: initialise portaudio: %w", audio.ErrCaptureUnavailable, err)
	}

	stream, err := s.open()
	if err != nil {
		pa.Terminate()
		return fmt.Errorf("%w: open stream: %w", audio.ErrCaptureUnavailable, err)
	}
	s.handler = h
	s.closed = false

	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return fmt.Errorf("%w: start stream: %w", audio.ErrCaptureUnavailable, err)
	}
	s.stream = stream
	return nil
}

func (s *Source) open() (*pa.Stream, error) {
	if s.device == "" {
		return pa.OpenDefaultStream(1, 0, float64(s.sampleRate), s.framesPerBuffer, s.callback)
	}

	dev, err := findDevice(s.device)
	if err != nil {
		return nil, err
	}
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.sampleRate),
		FramesPerBuffer: s.framesPerBuffer,
	}
	return pa.OpenStream(params, s.callback)
}

// callback runs on the PortAudio real-time thread.
func (s *Source) callback(in []int16) {
	now := time.Now()
	s.mu.Lock()
	h, closed := s.handler, s.closed
	s.mu.Unlock()
	if h == nil || closed {
		return
	}
	samples := make([]int16, len(in))
	copy(samples, in)
	h(audio.Frame{
		Samples:    samples,
		SampleRate: s.sampleRate,
		Channels:   1,
		Captured:   now,
	})
}

// Close stops the stream and terminates PortAudio. Safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.closed = true
	s.handler = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	var errs []error
	if err := stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
	}
	if err := stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	if err := pa.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
	}
	return errors.Join(errs...)
}

// ListDevices returns every device that offers at least one input channel.
func ListDevices() ([]audio.Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialise portaudio: %w", audio.ErrCaptureUnavailable, err)
	}
	defer pa.Terminate()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var def string
	if d, err := pa.DefaultInputDevice(); err == nil && d != nil {
		def = d.Name
	}

	var out []audio.Device
	for i, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, audio.Device{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           d.Name == def,
		})
	}
	return out, nil
}

func findDevice(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", name)
}
