// Package mock provides an in-memory mock implementation of [audio.Source]
// for use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts, and it exposes exported fields that the test
// can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	_ = src.Start(handler)
//	src.Emit(audio.Frame{Samples: samples, SampleRate: 16000, Channels: 1})
package mock

import (
	"sync"

	"github.com/MrWong99/myra/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
// Set the exported error fields before use; inspect the Call* fields after.
type Source struct {
	mu sync.Mutex

	// StartErr is returned by [Source.Start]. When non-nil the handler is not
	// registered.
	StartErr error

	// CloseErr is returned by [Source.Close].
	CloseErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	handler audio.Handler
}

// Start records the call and registers h unless StartErr is set.
func (s *Source) Start(h audio.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.handler = h
	return nil
}

// Close records the call, unregisters the handler and returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.handler = nil
	return s.CloseErr
}

// SetStartErr changes StartErr while the source may be in use.
func (s *Source) SetStartErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartErr = err
}

// Calls returns the Start and Close call counts. Thread-safe.
func (s *Source) Calls() (starts, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStart, s.CallCountClose
}

// Emit delivers f to the registered handler, simulating one device callback.
// It reports whether a handler was registered.
func (s *Source) Emit(f audio.Frame) bool {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h(f)
	return true
}

// Running reports whether Start succeeded and Close has not been called since.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

var _ audio.Source = (*Source)(nil)
