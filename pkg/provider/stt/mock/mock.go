// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to hand out scripted sessions and to verify the StreamConfig
// the caller asked for. Use Session to feed Transcript values to the code
// under test and inspect which audio chunks it delivered.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	go sess.Final("hey myra")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/myra/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are handed out in order, one per StartStream call. Once
	// exhausted, StartStream returns fresh sessions from NewSession.
	Sessions []*Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	next int
}

// StartStream records the call and returns the next scripted session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.next < len(p.Sessions) {
		s := p.Sessions[p.next]
		p.next++
		return s, nil
	}
	return NewSession(), nil
}

// Enqueue appends scripted sessions under the mock's lock, for tests that
// script a later utterance while the code under test is running.
func (p *Provider) Enqueue(sessions ...*Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sessions = append(p.Sessions, sessions...)
}

// SetStartStreamErr changes StartStreamErr under the mock's lock, for tests
// that toggle failures while the code under test is running.
func (p *Provider) SetStartStreamErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamErr = err
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Its transcript
// channels are closed by Close, like a real provider's.
type Session struct {
	mu sync.Mutex

	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// AudioBytes is the total number of PCM bytes delivered via SendAudio.
	AudioBytes int

	// SendAudioCallCount is the number of SendAudio calls.
	SendAudioCallCount int

	// SetKeywordsCalls records every keyword list passed to SetKeywords.
	SetKeywordsCalls [][]stt.KeywordBoost

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closed bool
	audio  chan struct{}
}

// NewSession returns a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
		audio:      make(chan struct{}, 1),
	}
}

// Partial queues an interim transcript. It is a no-op after Close.
func (s *Session) Partial(text string) { s.send(stt.Transcript{Text: text}) }

// Final queues a committed transcript. It is a no-op after Close.
func (s *Session) Final(text string) { s.send(stt.Transcript{Text: text, IsFinal: true}) }

func (s *Session) send(tr stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if tr.IsFinal {
		s.FinalsCh <- tr
		return
	}
	s.PartialsCh <- tr
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCallCount++
	s.AudioBytes += len(chunk)
	if s.audio != nil {
		select {
		case s.audio <- struct{}{}:
		default:
		}
	}
	return s.SendAudioErr
}

// AudioReceived is signalled (without blocking) on every SendAudio call.
// Only available on sessions made by NewSession.
func (s *Session) AudioReceived() <-chan struct{} { return s.audio }

func (s *Session) Partials() <-chan stt.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PartialsCh
}

func (s *Session) Finals() <-chan stt.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinalsCh
}

// SetKeywords records the call and returns nil.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetKeywordsCalls = append(s.SetKeywordsCalls, append([]stt.KeywordBoost(nil), keywords...))
	return nil
}

// Close records the call, closes both transcript channels once and returns
// CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.PartialsCh)
		close(s.FinalsCh)
	}
	return s.CloseErr
}

// Closed reports whether Close has been called. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns the SendAudio call count and byte total. Thread-safe.
func (s *Session) Stats() (calls, bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SendAudioCallCount, s.AudioBytes
}

var _ stt.SessionHandle = (*Session)(nil)
