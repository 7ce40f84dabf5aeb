package wakeword

import (
	"errors"
	"fmt"
	"strings"
)

// Pattern is one configured wake phrase together with the spellings the
// recogniser is known to produce for it.
type Pattern struct {
	Phrase     string   `yaml:"phrase"`
	Variations []string `yaml:"variations"`
}

// Substitution replaces every occurrence of From with To.
type Substitution struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Phonetic is the normalisation table applied to both sides of a phonetic
// comparison. It models misrecognitions typical of distant speech and is
// data, not algorithm: it is tuned for "myra" and will not generalise to
// other wake words without editing.
type Phonetic struct {
	// Substitutions are applied in order.
	Substitutions []Substitution `yaml:"substitutions"`

	// StripTrailing lists characters of which one is dropped from the end
	// of the word, modelling stop consonants lost at a distance.
	StripTrailing string `yaml:"strip_trailing"`
}

// Normalize applies the substitution table and the trailing strip to word.
// word is expected to be lowercase.
func (p Phonetic) Normalize(word string) string {
	for _, s := range p.Substitutions {
		if s.From == "" {
			continue
		}
		word = strings.ReplaceAll(word, s.From, s.To)
	}
	if len(word) > 1 && p.StripTrailing != "" && strings.ContainsRune(p.StripTrailing, rune(word[len(word)-1])) {
		word = word[:len(word)-1]
	}
	return word
}

// DefaultPrimary is the single wake word fuzzy and phonetic stages compare
// tokens against.
const DefaultPrimary = "myra"

// DefaultPatterns returns the built-in wake table. Exact matching walks it
// in order, so longer phrases come first.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Phrase: "wake up myra"},
		{Phrase: "hey myra", Variations: []string{
			"hey mira", "hey maria", "hey maya", "hey moira", "hey murph",
			"hey europe", "a myra",
		}},
		{Phrase: "hello myra", Variations: []string{"hello mira", "hello maria"}},
		{Phrase: "hi myra", Variations: []string{"hi mira", "hi maria"}},
		{Phrase: "myra", Variations: []string{
			"moira", "maya", "maria", "mayra", "meera", "myrah", "mirror", "murph", "europe",
		}},
	}
}

// DefaultPhonetic returns the built-in normalisation table.
func DefaultPhonetic() Phonetic {
	return Phonetic{
		Substitutions: []Substitution{
			{From: "ph", To: "f"},
			{From: "europe", To: "myra"},
			{From: "murph", To: "myra"},
			{From: "mur", To: "myr"},
			{From: "eur", To: "myr"},
			{From: "ur", To: "yr"},
		},
		StripTrailing: "hpkt",
	}
}

// Config holds the wake table and the stage thresholds.
type Config struct {
	Patterns []Pattern
	Primary  string
	Phonetic Phonetic

	TokenThreshold    float64
	PhoneticThreshold float64
	PhraseThreshold   float64
	PartialThreshold  float64

	// Window is the number of finalized words kept in the rolling buffer.
	Window int
}

// DefaultConfig returns the built-in table with default thresholds.
func DefaultConfig() Config {
	return Config{
		Patterns:          DefaultPatterns(),
		Primary:           DefaultPrimary,
		Phonetic:          DefaultPhonetic(),
		TokenThreshold:    0.6,
		PhoneticThreshold: 0.7,
		PhraseThreshold:   0.6,
		PartialThreshold:  0.8,
		Window:            10,
	}
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error
	if len(c.Patterns) == 0 {
		errs = append(errs, errors.New("wakeword: at least one pattern is required"))
	}
	for i, p := range c.Patterns {
		if strings.TrimSpace(p.Phrase) == "" {
			errs = append(errs, fmt.Errorf("wakeword: patterns[%d]: phrase must not be empty", i))
		}
	}
	if strings.TrimSpace(c.Primary) == "" {
		errs = append(errs, errors.New("wakeword: primary must not be empty"))
	}
	for name, v := range map[string]float64{
		"token_threshold":    c.TokenThreshold,
		"phonetic_threshold": c.PhoneticThreshold,
		"phrase_threshold":   c.PhraseThreshold,
		"partial_threshold":  c.PartialThreshold,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("wakeword: %s must be in (0, 1], got %g", name, v))
		}
	}
	if c.Window < 1 {
		errs = append(errs, fmt.Errorf("wakeword: window must be at least 1, got %d", c.Window))
	}
	return errors.Join(errs...)
}

// compile lowercases the table and extracts the two-word phrases used by
// the phrase stage.
func (c Config) compile() *compiled {
	cc := &compiled{
		Config:  c,
		primary: clean(c.Primary),
	}
	cc.Patterns = make([]Pattern, 0, len(c.Patterns))
	for _, p := range c.Patterns {
		lp := Pattern{Phrase: clean(p.Phrase)}
		for _, v := range p.Variations {
			if v = clean(v); v != "" {
				lp.Variations = append(lp.Variations, v)
			}
		}
		cc.Patterns = append(cc.Patterns, lp)
		if words := strings.Fields(lp.Phrase); len(words) == 2 {
			cc.pairs = append(cc.pairs, lp.Phrase)
		}
	}
	cc.primaryPhonetic = c.Phonetic.Normalize(cc.primary)
	return cc
}

type compiled struct {
	Config
	primary         string
	primaryPhonetic string
	pairs           []string
}
