package config

import "reflect"

// ConfigDiff describes what changed between two configs.
//
// Log level, profile tunables, the wake table and the assistant phrases are
// applied live. Audio and provider changes need a restart; they are only
// reported so the caller can log them.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ProfileChanged is true when the resolved profile differs, including a
	// switch to another named profile with the same values overridden.
	ProfileChanged bool
	WakeChanged    bool

	AssistantChanged bool

	// RestartRequired lists the top-level sections whose changes are not
	// applied until the next start, e.g. "audio" or "providers.stt".
	RestartRequired []string
}

// Changed reports whether anything at all differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ProfileChanged || d.WakeChanged || d.AssistantChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed. Both configs
// are expected to have passed [Validate].
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldP, errOld := old.Profile.Resolve()
	newP, errNew := new.Profile.Resolve()
	d.ProfileChanged = errOld != nil || errNew != nil || oldP != newP

	d.WakeChanged = !reflect.DeepEqual(old.Wake, new.Wake)
	d.AssistantChanged = !reflect.DeepEqual(old.Assistant, new.Assistant)

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	for _, p := range []struct {
		name     string
		old, new ProviderEntry
	}{
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"providers.llm", old.Providers.LLM, new.Providers.LLM},
	} {
		if !reflect.DeepEqual(p.old, p.new) {
			d.RestartRequired = append(d.RestartRequired, p.name)
		}
	}
	return d
}

// Sections names the changed parts of the config, live ones first, in a form
// suitable for a log attribute.
func (d ConfigDiff) Sections() []string {
	var s []string
	if d.LogLevelChanged {
		s = append(s, "server.log_level")
	}
	if d.ProfileChanged {
		s = append(s, "profile")
	}
	if d.WakeChanged {
		s = append(s, "wake")
	}
	if d.AssistantChanged {
		s = append(s, "assistant")
	}
	return append(s, d.RestartRequired...)
}
