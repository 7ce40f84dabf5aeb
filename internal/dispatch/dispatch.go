// Package dispatch routes a recognised command to whatever produces the
// spoken answer. The assistant's front-end only needs [Dispatcher]; the
// concrete implementations here cover clock questions locally and send
// everything else to a language model.
package dispatch

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyCommand is returned when Dispatch is called with blank text.
var ErrEmptyCommand = errors.New("dispatch: empty command")

// ErrUnhandled is returned by dispatchers that decline a command, letting a
// [Chain] try the next one.
var ErrUnhandled = errors.New("dispatch: command not handled")

// Dispatcher turns a command into a reply to be spoken.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd string) (string, error)
}

// Func adapts an ordinary function to [Dispatcher].
type Func func(ctx context.Context, cmd string) (string, error)

// Dispatch calls f.
func (f Func) Dispatch(ctx context.Context, cmd string) (string, error) { return f(ctx, cmd) }

// Chain tries each dispatcher in order and returns the first reply that is
// not [ErrUnhandled].
type Chain []Dispatcher

// Dispatch implements [Dispatcher].
func (c Chain) Dispatch(ctx context.Context, cmd string) (string, error) {
	if strings.TrimSpace(cmd) == "" {
		return "", ErrEmptyCommand
	}
	for _, d := range c {
		reply, err := d.Dispatch(ctx, cmd)
		if errors.Is(err, ErrUnhandled) {
			continue
		}
		return reply, err
	}
	return "", ErrUnhandled
}
