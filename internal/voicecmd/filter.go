// Package voicecmd implements the session shortcuts the assistant handles
// itself instead of forwarding to the command dispatcher: going to sleep,
// toggling auto-sleep, extending the session and reporting statistics.
//
// Commands are matched against whole, normalised utterances so that a
// request such as "stop the music" still reaches the dispatcher while a
// bare "stop" ends the session.
package voicecmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/MrWong99/myra/internal/session"
)

// Session is the part of [session.Machine] the built-in commands drive.
type Session interface {
	Sleep() bool
	Extend(extra time.Duration)
	ToggleAutoSleep() bool
	Stats() session.Stats
}

var _ Session = (*session.Machine)(nil)

var errNotAwake = errors.New("session is not awake")

// Outcome describes an executed command.
type Outcome struct {
	// Name is the pattern label, e.g. "sleep".
	Name string

	// Reply is the text to speak back.
	Reply string

	// Slept is true when the command ended the session.
	Slept bool

	// Extended is true when the command pushed the session deadline back.
	// A later activity touch would discard the extra time.
	Extended bool
}

// Pattern pairs a compiled regex with the action to execute when it matches.
type Pattern struct {
	// Regex is matched against the lower-cased utterance with surrounding
	// punctuation removed. Groups are passed to Action as matches[1:].
	Regex *regexp.Regexp

	// Name is a human-readable label for logging.
	Name string

	// Action executes the command. matches is the full submatch slice.
	Action func(ctx context.Context, s Session, matches []string) (Outcome, error)
}

// Filter checks commands against a set of patterns and executes the first
// that matches. It is stateless and safe for concurrent use.
type Filter struct {
	patterns []Pattern
}

// New creates a Filter with the built-in patterns. name is the assistant's
// wake word, which may trail a command ("goodbye myra"); extend is how much
// time the "extend" command adds.
func New(name string, extend time.Duration) *Filter {
	return &Filter{patterns: defaultPatterns(name, extend)}
}

// Check tests whether text is a session command. If so the action runs on s
// and Check returns the outcome with true. Errors from the action are
// returned as (Outcome{}, true, err).
func (f *Filter) Check(ctx context.Context, text string, s Session) (Outcome, bool, error) {
	norm := normalise(text)
	if norm == "" {
		return Outcome{}, false, nil
	}

	for _, p := range f.patterns {
		matches := p.Regex.FindStringSubmatch(norm)
		if matches == nil {
			continue
		}

		out, err := p.Action(ctx, s, matches)
		if err != nil {
			slog.Warn("voicecmd: command failed",
				"pattern", p.Name,
				"command", norm,
				"error", err,
			)
			return Outcome{}, true, fmt.Errorf("voicecmd: %s: %w", p.Name, err)
		}
		out.Name = p.Name

		slog.Info("voicecmd: command executed",
			"pattern", p.Name,
			"command", norm,
			"reply", out.Reply,
		)
		return out, true, nil
	}

	return Outcome{}, false, nil
}

func normalise(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.TrimFunc(text, func(r rune) bool {
		return strings.ContainsRune(".,!?;: ", r)
	})
	return strings.Join(strings.Fields(text), " ")
}

// defaultPatterns returns the built-in session commands.
func defaultPatterns(name string, extend time.Duration) []Pattern {
	suffix := ""
	if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
		suffix = `(?:,?\s+` + regexp.QuoteMeta(name) + `)?`
	}
	return []Pattern{
		{
			Name:  "sleep",
			Regex: regexp.MustCompile(`^(?:ok(?:ay)?,?\s+)?(?:good\s?bye|bye|stop|exit|quit|sleep|go\s+to\s+sleep|sleep\s+now|that'?s\s+all)` + suffix + `$`),
			Action: func(_ context.Context, s Session, _ []string) (Outcome, error) {
				if !s.Sleep() {
					return Outcome{}, errNotAwake
				}
				return Outcome{Reply: "Goodbye! Say my name to wake me up again.", Slept: true}, nil
			},
		},
		{
			Name:  "stay-awake",
			Regex: regexp.MustCompile(`^(?:stay\s+awake|don'?t\s+(?:go\s+to\s+)?sleep|keep\s+listening)` + suffix + `$`),
			Action: func(_ context.Context, s Session, _ []string) (Outcome, error) {
				if s.ToggleAutoSleep() {
					return Outcome{Reply: "Auto-sleep is back on."}, nil
				}
				return Outcome{Reply: "Okay, I'll stay awake until you say goodbye."}, nil
			},
		},
		{
			Name:  "extend",
			Regex: regexp.MustCompile(`^(?:extend(?:\s+(?:the\s+)?session)?|(?:give\s+me\s+)?more\s+time)` + suffix + `$`),
			Action: func(_ context.Context, s Session, _ []string) (Outcome, error) {
				s.Extend(extend)
				return Outcome{
					Reply:    fmt.Sprintf("Sure, I'll listen for another %d seconds.", int(extend.Seconds())),
					Extended: true,
				}, nil
			},
		},
		{
			Name:  "status",
			Regex: regexp.MustCompile(`^(?:status|session\s+status|(?:give\s+me\s+(?:a\s+)?)?status\s+report)` + suffix + `$`),
			Action: func(_ context.Context, s Session, _ []string) (Outcome, error) {
				return Outcome{Reply: Summary(s.Stats())}, nil
			},
		},
	}
}

// Summary renders stats as a spoken sentence.
func Summary(st session.Stats) string {
	return fmt.Sprintf("I've woken up %s, handled %s and timed out %s. This session has been running for %s.",
		plural(st.WakeUps, "time"),
		plural(st.CommandsProcessed, "command"),
		plural(st.Timeouts, "time"),
		spoken(st.CurrentSession),
	)
}

func plural(n int, unit string) string {
	switch {
	case n == 1 && unit == "time":
		return "once"
	case n == 1:
		return "1 " + unit
	default:
		return fmt.Sprintf("%d %ss", n, unit)
	}
}

func spoken(d time.Duration) string {
	d = d.Round(time.Second)
	m, s := int(d/time.Minute), int((d%time.Minute)/time.Second)
	switch {
	case m == 0:
		return fmt.Sprintf("%d seconds", s)
	case s == 0:
		return fmt.Sprintf("%d minutes", m)
	default:
		return fmt.Sprintf("%d minutes and %d seconds", m, s)
	}
}
