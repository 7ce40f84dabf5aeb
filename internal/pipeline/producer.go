package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/myra/internal/enhance"
	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/provider/vad"
)

// FrameRecorder counts frames by gate decision.
type FrameRecorder interface {
	RecordFrame(ctx context.Context, forwarded bool)
}

// ProducerOption is a functional option for configuring a [Producer].
type ProducerOption func(*Producer)

// WithFrameRecorder registers a recorder (typically the metrics set) that is
// told about every gate decision.
func WithFrameRecorder(r FrameRecorder) ProducerOption {
	return func(p *Producer) {
		p.frames = r
	}
}

// WithProducerLogger sets the logger used for gate errors.
func WithProducerLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		p.log = l
	}
}

// Producer is the capture-side half of the pipeline:
// enhancement → voice-activity gate → [FrameChannel].
//
// [Producer.Handle] has the signature of [audio.Handler] and is meant to be
// registered with an [audio.Source]. It performs only bounded work and never
// blocks.
type Producer struct {
	filter *enhance.Filter
	gate   vad.SessionHandle
	out    *FrameChannel
	frames FrameRecorder
	log    *slog.Logger

	captured  atomic.Uint64
	forwarded atomic.Uint64
	lastFrame atomic.Int64 // unix nanos of the last captured frame
}

// NewProducer wires the three capture stages together.
func NewProducer(filter *enhance.Filter, gate vad.SessionHandle, out *FrameChannel, opts ...ProducerOption) *Producer {
	p := &Producer{
		filter: filter,
		gate:   gate,
		out:    out,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Handle processes one captured frame.
func (p *Producer) Handle(f audio.Frame) {
	p.captured.Add(1)
	p.lastFrame.Store(f.Captured.UnixNano())

	ef := p.filter.Apply(f)

	forward := true
	ev, err := p.gate.ProcessFrame(ef)
	if err != nil {
		// Gate errors fail open.
		p.log.Debug("pipeline: gate error, forwarding frame", "err", err)
	} else {
		forward = ev.Forward()
	}

	if p.frames != nil {
		p.frames.RecordFrame(context.Background(), forward)
	}
	if !forward {
		return
	}
	p.forwarded.Add(1)
	p.out.Push(ef)
}

// Stats reports how many frames were captured and how many passed the gate.
func (p *Producer) Stats() (captured, forwarded uint64) {
	return p.captured.Load(), p.forwarded.Load()
}

// LastFrame returns the capture time (unix nanoseconds) of the most recent
// frame, or 0 when no frame has arrived yet. Used by readiness checks.
func (p *Producer) LastFrame() int64 {
	return p.lastFrame.Load()
}
