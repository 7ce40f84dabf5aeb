package dispatch

import (
	"context"
	"regexp"
	"strings"
	"time"
)

var (
	timeQuestion = regexp.MustCompile(`\b(?:what(?:'s| is)? the time|what time is it|current time|tell me the time)\b`)
	dateQuestion = regexp.MustCompile(`\b(?:what(?:'s| is)? the date|what day is (?:it|today)|today'?s date|what is today)\b`)
)

// Clock answers time and date questions without a round trip to the model.
// Anything else is reported as [ErrUnhandled].
type Clock struct {
	// Now replaces time.Now. Used by tests.
	Now func() time.Time
}

// Dispatch implements [Dispatcher].
func (c Clock) Dispatch(_ context.Context, cmd string) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	q := strings.ToLower(cmd)
	switch {
	case timeQuestion.MatchString(q):
		return "The current time is " + now().Format("3:04 PM") + ".", nil
	case dateQuestion.MatchString(q):
		return "Today is " + now().Format("Monday, January 2, 2006") + ".", nil
	default:
		return "", ErrUnhandled
	}
}
