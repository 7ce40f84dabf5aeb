package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/myra/pkg/provider/stt"
)

// fakeTranscriber returns text for every call and records the sample counts
// it was asked to transcribe.
type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls []int
}

func (f *fakeTranscriber) transcribe(samples []float32, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, len(samples))
	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// speechPCM returns ms milliseconds of a 440 Hz tone at 16 kHz (RMS ≈ 7071).
func speechPCM(ms int) []byte {
	n := 16 * ms
	buf := make([]byte, n*2)
	for i := range n {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silencePCM(ms int) []byte { return make([]byte, 16*ms*2) }

func start(t *testing.T, p *Provider) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func waitFinal(t *testing.T, h stt.SessionHandle) stt.Transcript {
	t.Helper()
	select {
	case tr, ok := <-h.Finals():
		if !ok {
			t.Fatal("Finals closed without a transcript")
		}
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
	return stt.Transcript{}
}

func TestNew_EmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestStartStream_CancelledContext(t *testing.T) {
	t.Parallel()
	p := newProvider(&fakeTranscriber{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSpeechThenQuietChunks_EmitsFinal(t *testing.T) {
	t.Parallel()
	fake := &fakeTranscriber{text: "hey myra"}
	p := newProvider(fake, WithSilenceThresholdMs(200))
	h := start(t, p)

	if err := h.SendAudio(speechPCM(500)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := h.SendAudio(silencePCM(250)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	tr := waitFinal(t, h)
	if tr.Text != "hey myra" || !tr.IsFinal {
		t.Errorf("got %+v, want final %q", tr, "hey myra")
	}
	if tr.Duration != 750*time.Millisecond {
		t.Errorf("Duration = %v, want 750ms", tr.Duration)
	}
}

func TestSpeechThenNoAudio_EmitsFinal(t *testing.T) {
	t.Parallel()
	fake := &fakeTranscriber{text: "what time is it"}
	p := newProvider(fake, WithSilenceThresholdMs(50))
	h := start(t, p)

	if err := h.SendAudio(speechPCM(300)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if tr := waitFinal(t, h); tr.Text != "what time is it" {
		t.Errorf("Text = %q, want %q", tr.Text, "what time is it")
	}
}

func TestSilenceOnly_NoTranscript(t *testing.T) {
	t.Parallel()
	fake := &fakeTranscriber{text: "ghost"}
	p := newProvider(fake, WithSilenceThresholdMs(50))
	h := start(t, p)

	_ = h.SendAudio(silencePCM(500))
	time.Sleep(100 * time.Millisecond)
	h.Close()

	for tr := range h.Finals() {
		t.Errorf("unexpected transcript %q", tr.Text)
	}
	if got := fake.callCount(); got != 0 {
		t.Errorf("transcribe calls = %d, want 0", got)
	}
}

func TestMaxBuffer_ForcesFlush(t *testing.T) {
	t.Parallel()
	fake := &fakeTranscriber{text: "long"}
	p := newProvider(fake, WithSilenceThresholdMs(10_000), WithMaxBufferDurationMs(400))
	h := start(t, p)

	_ = h.SendAudio(speechPCM(250))
	_ = h.SendAudio(speechPCM(250))
	waitFinal(t, h)
}

func TestPartialInterval_EmitsPartials(t *testing.T) {
	t.Parallel()
	fake := &fakeTranscriber{text: "hey my"}
	p := newProvider(fake, WithSilenceThresholdMs(10_000), WithPartialIntervalMs(200))
	h := start(t, p)

	_ = h.SendAudio(speechPCM(250))
	select {
	case tr := <-h.Partials():
		if tr.IsFinal || tr.Text != "hey my" {
			t.Errorf("got %+v, want partial %q", tr, "hey my")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for partial")
	}
}

func TestClose_FlushesAndClosesChannels(t *testing.T) {
	t.Parallel()
	fake := &fakeTranscriber{text: "tail"}
	p := newProvider(fake, WithSilenceThresholdMs(10_000))
	h := start(t, p)

	_ = h.SendAudio(speechPCM(100))
	time.Sleep(50 * time.Millisecond)
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	tr, ok := <-h.Finals()
	if !ok || tr.Text != "tail" {
		t.Errorf("got %+v (open=%v), want flushed %q", tr, ok, "tail")
	}
	if _, ok := <-h.Finals(); ok {
		t.Error("Finals should be closed")
	}
	if _, ok := <-h.Partials(); ok {
		t.Error("Partials should be closed")
	}
	if err := h.SendAudio(speechPCM(10)); !errors.Is(err, errClosed) {
		t.Errorf("SendAudio after Close = %v, want %v", err, errClosed)
	}
}

func TestInferenceError_NoTranscript(t *testing.T) {
	t.Parallel()
	fake := &fakeTranscriber{err: errors.New("boom")}
	p := newProvider(fake, WithSilenceThresholdMs(50))
	h := start(t, p)

	_ = h.SendAudio(speechPCM(100))
	time.Sleep(200 * time.Millisecond)
	h.Close()
	for tr := range h.Finals() {
		t.Errorf("unexpected transcript %q", tr.Text)
	}
}

func TestSetKeywords_NotSupported(t *testing.T) {
	t.Parallel()
	h := start(t, newProvider(&fakeTranscriber{}))
	if err := h.SetKeywords([]stt.KeywordBoost{{Keyword: "myra"}}); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("SetKeywords = %v, want %v", err, stt.ErrNotSupported)
	}
}

func TestCleanSegment(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"  hey myra ", "hey myra"},
		{"[BLANK_AUDIO]", ""},
		{"(wind blowing)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanSegment(tt.in); got != tt.want {
			t.Errorf("cleanSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
