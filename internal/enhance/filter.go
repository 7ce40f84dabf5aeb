// Package enhance implements the far-field enhancement stage of the capture
// pipeline: pre-emphasis, noise gate, amplification, soft limiting and an
// optional single-pole high-pass filter, followed by a final clamp.
//
// The filter is best-effort. Any non-finite intermediate value makes [Filter.Apply]
// return the original frame unmodified rather than an error.
package enhance

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/MrWong99/myra/pkg/audio"
)

// Config holds the numeric tunables of the enhancement stage.
type Config struct {
	// GateThreshold zeroes every pre-emphasised sample whose magnitude is at
	// or below it.
	GateThreshold float64

	// Gain multiplies every sample after the gate.
	Gain float64

	// CompressionDivisor scales the tanh soft limiter. Output magnitude never
	// exceeds it.
	CompressionDivisor float64

	// PreemphasisAlpha is the first-order pre-emphasis coefficient. 0 disables
	// the stage.
	PreemphasisAlpha float64

	// Highpass enables the single-pole high-pass stage.
	Highpass bool

	// HighpassAlpha is the high-pass coefficient.
	HighpassAlpha float64
}

// DefaultConfig returns the enhancement settings of the "default" profile.
func DefaultConfig() Config {
	return Config{
		GateThreshold:      200,
		Gain:               2.5,
		CompressionDivisor: 16384,
		PreemphasisAlpha:   0.97,
		HighpassAlpha:      0.95,
	}
}

// Validate reports configuration values that can never produce useful output.
func (c Config) Validate() error {
	var errs []error
	if c.GateThreshold < 0 {
		errs = append(errs, errors.New("gate_threshold must be >= 0"))
	}
	if c.Gain <= 0 {
		errs = append(errs, errors.New("gain must be > 0"))
	}
	if c.CompressionDivisor <= 0 {
		errs = append(errs, errors.New("compression_divisor must be > 0"))
	}
	if c.PreemphasisAlpha < 0 || c.PreemphasisAlpha >= 1 {
		errs = append(errs, errors.New("preemphasis_alpha must be in [0, 1)"))
	}
	if c.Highpass && (c.HighpassAlpha <= 0 || c.HighpassAlpha >= 1) {
		errs = append(errs, errors.New("highpass_alpha must be in (0, 1)"))
	}
	return errors.Join(errs...)
}

// FailureRecorder is notified whenever a frame is passed through unmodified.
type FailureRecorder interface {
	RecordEnhancementFailure(ctx context.Context)
}

// Option is a functional option for configuring a [Filter].
type Option func(*Filter)

// WithLogger sets the logger used to report pass-through frames.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) {
		f.log = l
	}
}

// WithFailureRecorder registers a recorder (typically the metrics set) for
// pass-through frames.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(f *Filter) {
		f.failures = r
	}
}

// Filter applies the enhancement pipeline. A Filter holds no per-stream
// state, so one instance may be shared; the configuration can be swapped at
// runtime with [Filter.SetConfig].
type Filter struct {
	cfg      atomic.Pointer[Config]
	log      *slog.Logger
	failures FailureRecorder
	failed   atomic.Uint64
}

// New creates a Filter with the given configuration.
func New(cfg Config, opts ...Option) *Filter {
	f := &Filter{log: slog.Default()}
	f.cfg.Store(&cfg)
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetConfig atomically replaces the configuration used for subsequent frames.
func (f *Filter) SetConfig(cfg Config) {
	f.cfg.Store(&cfg)
}

// Config returns the configuration currently in effect.
func (f *Filter) Config() Config {
	return *f.cfg.Load()
}

// Failures reports how many frames have been passed through unmodified.
func (f *Filter) Failures() uint64 {
	return f.failed.Load()
}

// Apply enhances one frame. The result has the same length as the input and
// is deterministic for a given frame and configuration. It never fails: when
// the arithmetic produces a non-finite value the original samples are
// returned unchanged.
func (f *Filter) Apply(in audio.Frame) audio.EnhancedFrame {
	out, ok := process(in.Samples, f.cfg.Load())
	if !ok {
		f.failed.Add(1)
		f.log.Debug("enhance: non-finite sample, passing frame through", "samples", len(in.Samples))
		if f.failures != nil {
			f.failures.RecordEnhancementFailure(context.Background())
		}
		return audio.EnhancedFrame{Frame: in, Energy: audio.RMS(in.Samples)}
	}

	frame := in
	frame.Samples = out
	return audio.EnhancedFrame{Frame: frame, Energy: audio.RMS(out)}
}

// process runs stages 1 to 6 and reports false on any non-finite value.
func process(x []int16, cfg *Config) ([]int16, bool) {
	n := len(x)
	if n == 0 {
		return []int16{}, true
	}
	z := make([]float64, n)

	for i := range n {
		// Pre-emphasis.
		y := float64(x[i])
		if i > 0 {
			y -= cfg.PreemphasisAlpha * float64(x[i-1])
		}

		// Noise gate.
		if math.Abs(y) <= cfg.GateThreshold {
			z[i] = 0
			continue
		}

		// Amplification and soft limiting.
		v := math.Tanh(y*cfg.Gain/cfg.CompressionDivisor) * cfg.CompressionDivisor
		if !finite(v) {
			return nil, false
		}
		z[i] = v
	}

	if cfg.Highpass {
		prevIn, prevOut := z[0], z[0]
		for i := 1; i < n; i++ {
			cur := z[i]
			out := cfg.HighpassAlpha * (prevOut + cur - prevIn)
			if !finite(out) {
				return nil, false
			}
			z[i] = out
			prevIn, prevOut = cur, out
		}
	}

	out := make([]int16, n)
	for i, v := range z {
		out[i] = clamp(v)
	}
	return out, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clamp truncates toward zero and limits v to [-MaxSample, MaxSample].
func clamp(v float64) int16 {
	switch {
	case v >= audio.MaxSample:
		return audio.MaxSample
	case v <= -audio.MaxSample:
		return -audio.MaxSample
	default:
		return int16(v)
	}
}
