package speech

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// resampleQuality is passed to beep.Resample; 4 is a good speed/quality
// balance for speech.
const resampleQuality = 4

// BeepPlayer plays audio through the default output device. The device is
// opened on first use at a fixed sample rate; audio in other rates is
// resampled.
type BeepPlayer struct {
	rate beep.SampleRate

	initOnce sync.Once
	initErr  error
	mu       sync.Mutex
}

var _ Player = (*BeepPlayer)(nil)

// NewBeepPlayer creates a player whose device runs at sampleRate Hz
// (22050 matches espeak-ng output).
func NewBeepPlayer(sampleRate int) *BeepPlayer {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	return &BeepPlayer{rate: beep.SampleRate(sampleRate)}
}

func (p *BeepPlayer) init() error {
	p.initOnce.Do(func() {
		if err := speaker.Init(p.rate, p.rate.N(time.Second/10)); err != nil {
			p.initErr = fmt.Errorf("speech: open output device: %w", err)
		}
	})
	return p.initErr
}

// Play decodes and plays a WAV file.
func (p *BeepPlayer) Play(ctx context.Context, data []byte) error {
	s, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("speech: decode wav: %w", err)
	}
	defer s.Close()

	var st beep.Streamer = s
	if format.SampleRate != p.rate {
		st = beep.Resample(resampleQuality, format.SampleRate, p.rate, s)
	}
	return p.play(ctx, st)
}

// Tone plays a sine tone.
func (p *BeepPlayer) Tone(ctx context.Context, hz float64, d time.Duration) error {
	return p.play(ctx, tone(p.rate, hz, d))
}

func (p *BeepPlayer) play(ctx context.Context, st beep.Streamer) error {
	if err := p.init(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	done := make(chan struct{})
	ctrl := &beep.Ctrl{Streamer: beep.Seq(st, beep.Callback(func() { close(done) }))}
	speaker.Play(ctrl)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		return ctx.Err()
	}
}

// tone returns a sine streamer at half amplitude with a 10 ms linear fade
// at both ends so it does not click.
func tone(rate beep.SampleRate, hz float64, d time.Duration) beep.Streamer {
	total := rate.N(d)
	fade := min(rate.N(10*time.Millisecond), total/2)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= total {
			return 0, false
		}
		for i := range samples {
			if pos >= total {
				return i, true
			}
			gain := 0.5
			if fade > 0 {
				switch {
				case pos < fade:
					gain *= float64(pos) / float64(fade)
				case total-pos < fade:
					gain *= float64(total-pos) / float64(fade)
				}
			}
			v := gain * math.Sin(2*math.Pi*hz*float64(pos)/float64(rate))
			samples[i][0], samples[i][1] = v, v
			pos++
		}
		return len(samples), true
	})
}
