// Package whisper implements [stt.Provider] on top of the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// whisper.cpp is not a streaming recogniser, so each session segments the
// incoming audio itself: speech is buffered until a pause is observed (either
// quiet chunks or no chunks at all, since the voice-activity gate upstream
// drops silent frames) and the buffered utterance is then transcribed in one
// pass and emitted as a final. When a partial interval is configured the
// buffer is additionally transcribed while speech is still ongoing and the
// result emitted as a partial, which lets the wake-word spotter react before
// the speaker pauses.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/myra/pkg/audio"
	"github.com/MrWong99/myra/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the signed little-endian PCM the
	// pipeline produces.
	bitsPerSample = 16

	// defaultRMSThreshold is the energy (in 16-bit PCM units) below which a
	// chunk counts as a pause.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 700
	defaultMaxBufferDurationMs = 10_000
)

var errClosed = errors.New("whisper: session is closed")

// transcriber runs one inference pass. Implemented by the loaded model and
// replaced by a fake in tests.
type transcriber interface {
	transcribe(samples []float32, language string) (string, error)
}

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the whisper.cpp Go bindings. The
// model is loaded once and shared across sessions.
type Provider struct {
	model  whisperlib.Model
	engine transcriber
	log    *slog.Logger

	language            string
	sampleRate          int
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int
	partialIntervalMs   int
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code for transcription (e.g., "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the sample rate of PCM delivered via SendAudio when
// the stream config does not specify one. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithRMSThreshold sets the energy below which a chunk counts as a pause.
// Defaults to 300.
func WithRMSThreshold(rms float64) Option {
	return func(p *Provider) { p.rmsThreshold = rms }
}

// WithSilenceThresholdMs sets how long a pause must last before the buffered
// utterance is transcribed. Defaults to 700 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum buffered speech before a forced
// transcription. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// WithPartialIntervalMs enables interim transcription of ongoing speech
// every ms milliseconds of buffered audio. Zero (the default) disables
// partials.
func WithPartialIntervalMs(ms int) Option {
	return func(p *Provider) { p.partialIntervalMs = ms }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// New loads the whisper.cpp model at modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := newProvider(&modelTranscriber{model: model}, opts...)
	p.model = model
	return p, nil
}

func newProvider(engine transcriber, opts ...Option) *Provider {
	p := &Provider{
		engine:              engine,
		log:                 slog.Default(),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		rmsThreshold:        defaultRMSThreshold,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new transcription session. Zero values in cfg fall
// back to the provider defaults.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		engine:              p.engine,
		log:                 p.log,
		language:            lang,
		sampleRate:          sr,
		channels:            ch,
		rmsThreshold:        p.rmsThreshold,
		silenceThresholdMs:  p.silenceThresholdMs,
		maxBufferDurationMs: p.maxBufferDurationMs,
		partialIntervalMs:   p.partialIntervalMs,

		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// session is a live transcription session. All segmentation state is
// confined to the processLoop goroutine.
type session struct {
	engine              transcriber
	log                 *slog.Logger
	language            string
	sampleRate          int
	channels            int
	rmsThreshold        float64
	silenceThresholdMs  int
	maxBufferDurationMs int
	partialIntervalMs   int

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a chunk of 16-bit little-endian PCM.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords is not supported: whisper.cpp has no keyword boosting API.
func (s *session) SetKeywords(_ []stt.KeywordBoost) error {
	return fmt.Errorf("whisper: %w", stt.ErrNotSupported)
}

// Close stops the session, transcribes any buffered speech and closes the
// transcript channels.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// segment is the speech buffer of the utterance in progress.
type segment struct {
	pcm          []byte
	hadSpeech    bool
	silenceMs    int
	sincePartial int
}

func (g *segment) reset() { *g = segment{} }

func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferDurationMs * bytesPerMs

	var seg segment

	flush := func() {
		if len(seg.pcm) == 0 || !seg.hadSpeech {
			seg.reset()
			return
		}
		pcm := seg.pcm
		seg.reset()
		s.emit(s.finals, pcm, true)
	}

	// The gate upstream stops delivering frames once the speaker pauses, so
	// a quiet channel is itself a pause.
	idle := time.NewTimer(time.Hour)
	idle.Stop()
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-s.done:
			flush()
			return

		case <-idle.C:
			flush()

		case chunk := <-s.audioCh:
			chunkMs := chunkDurationMs(chunk, s.sampleRate, s.channels)
			if audio.RMS(audio.PCMToSamples(chunk)) < s.rmsThreshold {
				if !seg.hadSpeech {
					continue
				}
				seg.silenceMs += chunkMs
				seg.pcm = append(seg.pcm, chunk...)
				if seg.silenceMs >= s.silenceThresholdMs {
					flush()
					continue
				}
			} else {
				seg.hadSpeech = true
				seg.silenceMs = 0
				seg.pcm = append(seg.pcm, chunk...)
				seg.sincePartial += chunkMs
				if maxBufferBytes > 0 && len(seg.pcm) >= maxBufferBytes {
					flush()
					continue
				}
				if s.partialIntervalMs > 0 && seg.sincePartial >= s.partialIntervalMs {
					seg.sincePartial = 0
					s.emit(s.partials, seg.pcm, false)
				}
			}
			idle.Reset(time.Duration(s.silenceThresholdMs) * time.Millisecond)
		}
	}
}

// emit transcribes pcm and delivers the result on out without blocking.
func (s *session) emit(out chan stt.Transcript, pcm []byte, final bool) {
	text, err := s.engine.transcribe(pcmToFloat32(pcm, s.channels), s.language)
	if err != nil {
		s.log.Error("whisper inference failed", "final", final, "err", err)
		return
	}
	if text == "" {
		return
	}
	tr := stt.Transcript{
		Text:     text,
		IsFinal:  final,
		Duration: time.Duration(len(pcm)) * time.Second / time.Duration(s.sampleRate*s.channels*(bitsPerSample/8)),
	}
	select {
	case out <- tr:
	default:
		s.log.Warn("whisper transcript dropped, consumer not reading", "final", final)
	}
}

// chunkDurationMs returns the duration of a PCM chunk in milliseconds.
func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return len(chunk) * 1000 / (sampleRate * channels * (bitsPerSample / 8))
}

// modelTranscriber runs inference on a fresh context of the shared model.
type modelTranscriber struct {
	model whisperlib.Model
}

func (m *modelTranscriber) transcribe(samples []float32, language string) (string, error) {
	// Contexts are not thread-safe; the model is.
	wctx, err := m.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := cleanSegment(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// cleanSegment trims a segment and drops the bracketed non-speech markers
// whisper emits for noise, such as "[BLANK_AUDIO]" or "(wind blowing)".
func cleanSegment(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '[' && last == ']') || (first == '(' && last == ')') {
			return ""
		}
	}
	return text
}

// Compile-time assertion that session satisfies stt.SessionHandle.
var _ stt.SessionHandle = (*session)(nil)
