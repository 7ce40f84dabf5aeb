package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/myra/internal/dispatch"
	"github.com/MrWong99/myra/internal/listen"
	"github.com/MrWong99/myra/internal/observe"
	"github.com/MrWong99/myra/internal/session"
)

// step runs one iteration of the listen loop. While sleeping it waits for
// the wake phrase; while awake it checks the session timeout and listens
// for the next command.
func (a *App) step(ctx context.Context) {
	if a.session.State() == session.StateSleeping {
		a.awaitWake(ctx)
		return
	}
	if a.checkTimeout(ctx) {
		return
	}
	a.awaitCommand(ctx, "", false)
}

// awaitWake runs one wake phase. Text spoken after the wake phrase in the
// same utterance seeds the command; otherwise the assistant acknowledges and
// waits for one.
func (a *App) awaitWake(ctx context.Context) {
	res := a.listener.ListenForWake(ctx)
	if !a.usable(ctx, "wake", res) {
		return
	}
	if !a.session.WakeDetected() {
		return
	}
	ctx, span := observe.StartWake(ctx, res.Match.Type.String(), res.Match.Score)
	defer span.End()

	seed := strings.TrimSpace(res.Match.Remainder)
	observe.Logger(ctx, a.log).Info("session started",
		"match_type", res.Match.Type.String(),
		"score", res.Match.Score,
		"seed", seed,
	)
	if seed == "" {
		a.acknowledge(ctx)
	}
	a.awaitCommand(ctx, seed, true)
}

// acknowledge plays the wake chime and speaks the greeting. The greeting
// counts as activity, so the idle period starts once it has been played.
func (a *App) acknowledge(ctx context.Context) {
	phrases := a.phrases()
	if phrases.ChimeEnabled() {
		if c, ok := a.out.(interface{ Chime(context.Context) error }); ok {
			if err := c.Chime(ctx); err != nil {
				a.log.Debug("wake chime failed", "err", err)
			}
		}
	}
	a.say(ctx, phrases.Greeting)
	a.session.Touch()
}

// awaitCommand runs one command phase. The phase never outlasts the next
// session check, so the timeout warning is spoken on time. firstAfterWake
// makes an empty result audible: the user called the assistant and then
// said nothing it understood.
func (a *App) awaitCommand(ctx context.Context, seed string, firstAfterWake bool) {
	timeout := a.listener.Config().CommandTimeout
	if d, ok := a.session.TimeUntilCheck(); ok {
		if d <= 0 && seed == "" {
			return
		}
		if d > 0 && d < timeout {
			timeout = d
		}
	}

	res := a.listener.ListenForCommand(ctx, seed, timeout)
	switch {
	case res.Status == listen.StatusOK && res.Text != "":
		a.handleCommand(ctx, res.Text)
	case res.Status == listen.StatusTimeout && ctx.Err() == nil:
		a.log.Debug("no command heard", "timeout", timeout)
		if firstAfterWake {
			a.say(ctx, a.phrases().NotHeard)
			a.session.Touch()
		}
	default:
		a.usable(ctx, "command", res)
	}
}

// handleCommand answers one command: session commands first, then the
// dispatcher chain (clock, language model).
func (a *App) handleCommand(ctx context.Context, text string) {
	ctx, span := observe.StartCommand(ctx, text)
	var spanErr error
	defer func() { observe.EndSpan(span, spanErr) }()

	log := observe.Logger(ctx, a.log)
	log.Info("command received", "command", text)
	a.session.Touch()

	out, ok, err := a.commands.Load().Check(ctx, text, a.session)
	if ok {
		handler := "voicecmd_" + out.Name
		if err != nil {
			a.metrics.RecordCommand(ctx, handler, "error")
			log.Warn("session command failed", "command", text, "err", err)
			spanErr = err
			return
		}
		a.metrics.RecordCommand(ctx, handler, "ok")
		a.say(ctx, out.Reply)
		switch {
		case out.Slept:
			a.resetConversation()
			log.Info("session ended by command", "command", text)
		case out.Extended:
			a.session.CountCommand()
		default:
			a.session.CommandProcessed()
		}
		return
	}

	start := time.Now()
	reply, err := a.dispatcher.Dispatch(ctx, text)
	a.metrics.RecordDispatch(ctx, "chain", time.Since(start))
	switch {
	case err == nil:
		a.metrics.RecordCommand(ctx, "dispatch", "ok")
		a.recordLLM(ctx, "ok")
	case errors.Is(err, dispatch.ErrUnhandled):
		a.metrics.RecordCommand(ctx, "dispatch", "unhandled")
		log.Info("no handler for command", "command", text)
		reply = a.phrases().Failure
	default:
		a.metrics.RecordCommand(ctx, "dispatch", "error")
		a.recordLLM(ctx, "error")
		log.Warn("command dispatch failed", "command", text, "err", err)
		spanErr = err
		reply = a.phrases().Failure
	}
	if ctx.Err() != nil {
		return
	}
	a.say(ctx, reply)
	a.session.CommandProcessed()
}

func (a *App) recordLLM(ctx context.Context, status string) {
	if a.llm == nil {
		return
	}
	name := a.cfg.Providers.LLM.Name
	a.metrics.RecordProviderRequest(ctx, name, "llm", status)
	if status != "ok" {
		a.metrics.RecordProviderError(ctx, name, "llm")
	}
}

// checkTimeout applies the session timeout. It reports whether the session
// just went to sleep.
func (a *App) checkTimeout(ctx context.Context) bool {
	switch a.session.CheckTimeout() {
	case session.ActionWarn:
		// Not activity: touching here would re-arm the timeout forever.
		a.say(ctx, a.warning())
	case session.ActionSleep:
		a.log.Info("session timed out")
		a.say(ctx, a.phrases().TimeoutNotice)
		a.resetConversation()
		return true
	}
	return false
}

// warning renders the warning phrase with the seconds left.
func (a *App) warning() string {
	phrase := a.phrases().Warning
	if !strings.Contains(phrase, "%d") {
		return phrase
	}
	secs := int(a.session.Config().WarningWindow.Seconds())
	if deadline, ok := a.session.Deadline(); ok {
		secs = int(math.Ceil(deadline.Sub(a.now()).Seconds()))
	}
	return fmt.Sprintf(phrase, max(secs, 0))
}

// usable reports whether res can be acted on and handles the other
// outcomes: timeouts are routine, an unavailable recogniser is retried
// after a pause.
func (a *App) usable(ctx context.Context, phase string, res listen.Result) bool {
	switch res.Status {
	case listen.StatusOK:
		return true
	case listen.StatusTimeout:
		return false
	case listen.StatusServiceUnavailable:
		a.metrics.RecordProviderError(ctx, a.cfg.Providers.STT.Name, "stt")
		a.log.Warn("transcription unavailable, retrying", "phase", phase, "delay", a.retryDelay, "err", res.Err)
	case listen.StatusBusy:
		a.log.Debug("listener busy", "phase", phase)
	}
	select {
	case <-ctx.Done():
	case <-time.After(a.retryDelay):
	}
	return false
}

// say speaks text synchronously. Failures are logged; the loop carries on.
func (a *App) say(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	start := time.Now()
	if err := a.out.Speak(ctx, text); err != nil {
		a.log.Warn("speech output failed", "text", text, "err", err)
		return
	}
	a.metrics.RecordSpeech(ctx, time.Since(start))
}

// resetConversation forgets the language-model history once a session ends.
func (a *App) resetConversation() {
	if a.llm != nil {
		a.llm.Reset()
	}
}
