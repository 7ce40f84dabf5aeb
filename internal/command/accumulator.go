// Package command collects final transcript fragments into a spoken command.
package command

import (
	"strings"
	"sync"
)

// DefaultMinWords is the word count at which a command is considered
// complete.
const DefaultMinWords = 2

// Accumulator joins final transcript fragments until enough words have been
// heard. It is owned by one listen at a time but safe for concurrent use.
// The wall-clock bound on a command is enforced by the caller, which calls
// [Accumulator.Flush] when it expires.
type Accumulator struct {
	mu        sync.Mutex
	minWords  int
	fragments []string
	words     int
}

// New creates an Accumulator completing at minWords words. Values below 1
// are raised to 1.
func New(minWords int) *Accumulator {
	return &Accumulator{minWords: max(minWords, 1)}
}

// SetMinWords changes the completion threshold for subsequent fragments.
func (a *Accumulator) SetMinWords(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.minWords = max(n, 1)
}

// Add appends a final fragment. Once the cumulative word count reaches the
// minimum it returns the joined command, clears the buffer and reports done.
// Blank fragments are ignored.
func (a *Accumulator) Add(text string) (cmd string, done bool) {
	words := strings.Fields(text)
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(words) == 0 {
		return "", false
	}
	a.fragments = append(a.fragments, strings.Join(words, " "))
	a.words += len(words)
	if a.words < a.minWords {
		return "", false
	}
	return a.takeLocked(), true
}

// Flush returns whatever has been collected, possibly the empty string, and
// clears the buffer. An empty result means nothing was heard.
func (a *Accumulator) Flush() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.takeLocked()
}

// Reset discards all fragments.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fragments = nil
	a.words = 0
}

// Len returns the number of words collected so far.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.words
}

func (a *Accumulator) takeLocked() string {
	cmd := strings.Join(a.fragments, " ")
	a.fragments = nil
	a.words = 0
	return cmd
}
