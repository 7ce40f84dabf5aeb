package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/myra/internal/resilience"
)

var errNotRunning = errors.New("not running")

// Running reports a failure while running returns false.
func Running(name string, running func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !running() {
			return errNotRunning
		}
		return nil
	}}
}

// BreakerClosed fails while cb is open. A half-open breaker is probing and
// counts as ready.
func BreakerClosed(name string, cb *resilience.CircuitBreaker) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if s := cb.State(); s == resilience.StateOpen {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}}
}
