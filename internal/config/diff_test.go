package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/myra/internal/config"
	"github.com/MrWong99/myra/internal/wakeword"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	return load(t, sampleYAML)
}

func TestDiff_NoChange(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(t), baseConfig(t))
	if d.Changed() {
		t.Errorf("Diff of identical configs = %+v, want no change", d)
	}
}

func TestDiff_LiveChanges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogError },
			check:  func(d config.ConfigDiff) bool { return d.LogLevelChanged && d.NewLogLevel == config.LogError },
		},
		{
			name: "profile override",
			mutate: func(c *config.Config) {
				g := 5.0
				c.Profile.Gain = &g
			},
			check: func(d config.ConfigDiff) bool { return d.ProfileChanged },
		},
		{
			name:   "profile switch",
			mutate: func(c *config.Config) { c.Profile.Name = config.ProfileFast },
			check:  func(d config.ConfigDiff) bool { return d.ProfileChanged },
		},
		{
			name: "wake table",
			mutate: func(c *config.Config) {
				c.Wake.Patterns = append(c.Wake.Patterns, wakeword.Pattern{Phrase: "hello myra"})
			},
			check: func(d config.ConfigDiff) bool { return d.WakeChanged },
		},
		{
			name:   "assistant phrase",
			mutate: func(c *config.Config) { c.Assistant.Greeting = "Hm?" },
			check:  func(d config.ConfigDiff) bool { return d.AssistantChanged },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(t), baseConfig(t)
			tt.mutate(new)
			d := config.Diff(old, new)
			if !tt.check(d) {
				t.Errorf("Diff = %+v", d)
			}
			if len(d.RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none for a live change", d.RestartRequired)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Server.ListenAddr = ":9999"
	new.Audio.Device = "Built-in"
	new.Providers.STT.APIKey = "rotated"
	new.Providers.LLM.Options = map[string]any{"temperature": 0.2}

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "audio", "providers.stt", "providers.llm"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.ProfileChanged || d.WakeChanged || d.AssistantChanged {
		t.Errorf("unexpected live change in %+v", d)
	}
}

func TestDiff_SameValuesDifferentSpelling(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	old.Profile.Name = "long-distance"
	new.Profile.Name = "Long-Distance"
	if d := config.Diff(old, new); d.ProfileChanged {
		t.Error("profile names resolving to the same values should not count as a change")
	}
}

func TestDiff_Sections(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Server.LogLevel = config.LogWarn
	new.Assistant.Greeting = "Mm?"
	new.Audio.Device = "USB array"

	want := []string{"server.log_level", "assistant", "audio"}
	if got := config.Diff(old, new).Sections(); !slices.Equal(got, want) {
		t.Errorf("Sections() = %v, want %v", got, want)
	}
	if got := config.Diff(old, old).Sections(); len(got) != 0 {
		t.Errorf("Sections() without changes = %v, want empty", got)
	}
}
