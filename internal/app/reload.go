package app

import (
	"time"

	"github.com/MrWong99/myra/internal/config"
	"github.com/MrWong99/myra/internal/voicecmd"
	"github.com/MrWong99/myra/pkg/provider/vad"
)

// ApplyConfig applies a reloaded configuration. It is the [config.Watcher]
// callback: log level, profile tunables, the wake table and the assistant
// phrases take effect immediately; audio and provider changes are logged
// and wait for a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.ProfileChanged || d.WakeChanged {
		p, err := new.Profile.Resolve()
		if err != nil {
			a.log.Warn("config reload: keeping previous profile", "err", err)
		} else {
			a.applyProfile(old, new, p, d.ProfileChanged)
		}
	}

	if d.AssistantChanged {
		asst := new.Assistant
		a.commands.Store(voicecmd.New(asst.Name, time.Duration(asst.ExtendSeconds)*time.Second))
		if a.llm != nil {
			a.llm.SetConfig(llmConfig(asst))
		}
		if asst.Language != old.Assistant.Language {
			lc := a.listener.Config()
			lc.Language = asst.Language
			a.listener.SetConfig(lc)
		}
		if asst.Voice != old.Assistant.Voice || asst.SpeedFactor != old.Assistant.SpeedFactor {
			d.RestartRequired = append(d.RestartRequired, "assistant.voice")
		}
		a.log.Info("assistant phrases updated")
	}

	a.mu.Lock()
	a.cfgNow = new
	a.assistant = new.Assistant
	a.mu.Unlock()

	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// applyProfile pushes the resolved tunables into the running components.
func (a *App) applyProfile(old, new *config.Config, p config.Profile, profileChanged bool) {
	a.spotter.SetConfig(p.Wake(new.Wake))
	if !profileChanged {
		a.log.Info("wake table updated", "patterns", len(a.spotter.Config().Patterns))
		return
	}

	a.filter.SetConfig(p.Enhance())
	if g, ok := a.gate.(interface{ SetConfig(vad.Config) error }); ok {
		if err := g.SetConfig(p.VAD(a.cfg.Audio.SampleRate)); err != nil {
			a.log.Warn("config reload: voice-activity gate rejected settings", "err", err)
		}
	}
	a.acc.SetMinWords(p.MinCommandWords)
	a.session.SetConfig(p.Session())
	a.listener.SetConfig(p.Listen(a.cfg.Audio.SampleRate, new.Assistant.Language))

	if oldP, err := old.Profile.Resolve(); err == nil && oldP.ChannelCapacity != p.ChannelCapacity {
		a.log.Warn("config changes need a restart to take effect", "sections", []string{"profile.channel_capacity"})
	}
	a.log.Info("profile applied", "profile", p.Name)
}
