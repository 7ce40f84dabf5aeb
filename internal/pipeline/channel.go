// Package pipeline connects the real-time capture callback to the recognition
// loop.
//
// The [Producer] runs on the capture device's callback goroutine: it enhances
// each frame, consults the voice-activity gate, and pushes forwarded frames
// into a [FrameChannel]. The FrameChannel is the only state shared between the
// capture context and the consumer; it is bounded and its Push never blocks.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/MrWong99/myra/pkg/audio"
)

// OverflowRecorder is notified whenever a frame is discarded to make room.
type OverflowRecorder interface {
	RecordOverflow(ctx context.Context)
}

// FrameChannel is a bounded single-producer/single-consumer queue of enhanced
// frames.
//
// When the queue is full, Push discards the oldest queued frame so the newest
// one fits (freshness wins over completeness) and increments the overflow
// counter. Push never blocks, which makes it safe to call from a real-time
// audio callback.
//
// Exactly one goroutine may call Push and exactly one other goroutine may
// receive from [FrameChannel.C] or call [FrameChannel.Drain].
type FrameChannel struct {
	ch        chan audio.EnhancedFrame
	overflows atomic.Uint64
	recorder  OverflowRecorder
}

// NewFrameChannel creates a channel holding at most capacity frames. A
// capacity below 1 is raised to 1.
func NewFrameChannel(capacity int, rec OverflowRecorder) *FrameChannel {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameChannel{
		ch:       make(chan audio.EnhancedFrame, capacity),
		recorder: rec,
	}
}

// Push enqueues f, evicting the oldest frame if the channel is full.
// Producer-only.
func (c *FrameChannel) Push(f audio.EnhancedFrame) {
	for {
		select {
		case c.ch <- f:
			return
		default:
		}
		// Full: make room. The consumer may have emptied a slot concurrently,
		// in which case nothing is evicted and the next send succeeds.
		select {
		case <-c.ch:
			c.overflows.Add(1)
			if c.recorder != nil {
				c.recorder.RecordOverflow(context.Background())
			}
		default:
		}
	}
}

// C returns the receive side of the channel for use in select statements.
// Consumer-only.
func (c *FrameChannel) C() <-chan audio.EnhancedFrame {
	return c.ch
}

// Drain discards every queued frame and reports how many were dropped.
// Consumer-only; used to flush stale audio before a new listen phase.
func (c *FrameChannel) Drain() int {
	n := 0
	for {
		select {
		case <-c.ch:
			n++
		default:
			return n
		}
	}
}

// Overflows reports how many frames have been evicted since creation.
func (c *FrameChannel) Overflows() uint64 {
	return c.overflows.Load()
}

// Len reports the number of queued frames.
func (c *FrameChannel) Len() int {
	return len(c.ch)
}

// Cap reports the fixed capacity.
func (c *FrameChannel) Cap() int {
	return cap(c.ch)
}
