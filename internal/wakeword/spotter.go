// Package wakeword detects the assistant's wake phrase in transcripts.
//
// The [Spotter] runs five stages in priority order and returns the first
// that succeeds:
//
//  1. Exact: a configured phrase is a substring of the text (score 1.0).
//  2. Variation: a configured mishearing is a substring (score 0.9).
//  3. FuzzyToken: a token is similar enough to the primary wake word.
//  4. Phonetic: as FuzzyToken, after [Phonetic.Normalize] on both sides.
//  5. FuzzyPhrase: a two-token window is similar enough to a two-word phrase.
//
// Final transcripts are appended to a rolling buffer of the last K words so
// that a phrase split across two results ("hey" then "myra") still matches.
// Partial transcripts are matched on their own against a stricter threshold
// and never touch the buffer.
package wakeword

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/myra/pkg/provider/stt"
)

// MatchType identifies the stage that produced a [Match].
type MatchType int

const (
	MatchExact MatchType = iota + 1
	MatchVariation
	MatchFuzzyToken
	MatchPhonetic
	MatchFuzzyPhrase
)

// String returns the snake_case name used in logs and metric attributes.
func (t MatchType) String() string {
	switch t {
	case MatchExact:
		return "exact"
	case MatchVariation:
		return "variation"
	case MatchFuzzyToken:
		return "fuzzy_token"
	case MatchPhonetic:
		return "phonetic"
	case MatchFuzzyPhrase:
		return "fuzzy_phrase"
	default:
		return "unknown"
	}
}

const (
	exactScore     = 1.0
	variationScore = 0.9
)

// Match is a wake detection. Score is always within [0, 1].
type Match struct {
	// Pattern is the canonical phrase that was detected.
	Pattern string
	// Text is the span of the transcript that matched.
	Text  string
	Score float64
	Type  MatchType
	// Remainder is whatever followed the matched span, used to seed the
	// command ("hey myra what time is it" → "what time is it").
	Remainder string
	// Partial reports whether the match came from an interim transcript.
	Partial bool
}

// Spotter matches transcripts against the wake table. It is safe for
// concurrent use; the configuration may be swapped while evaluating.
type Spotter struct {
	cfg atomic.Pointer[compiled]

	mu    sync.Mutex
	words []string
}

// New creates a Spotter. cfg should have passed [Config.Validate].
func New(cfg Config) *Spotter {
	s := &Spotter{}
	s.SetConfig(cfg)
	return s
}

// SetConfig replaces the wake table and thresholds. The rolling buffer is
// kept, truncated to the new window on the next final.
func (s *Spotter) SetConfig(cfg Config) {
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	s.cfg.Store(cfg.compile())
}

// Config returns the active configuration.
func (s *Spotter) Config() Config {
	return s.cfg.Load().Config
}

// Keywords returns recognition hints for STT providers that support keyword
// boosting: the primary wake word and every configured phrase.
func (s *Spotter) Keywords() []stt.KeywordBoost {
	cc := s.cfg.Load()
	seen := map[string]bool{cc.primary: true}
	out := []stt.KeywordBoost{{Keyword: cc.primary, Boost: 5}}
	for _, p := range cc.Patterns {
		if !seen[p.Phrase] {
			seen[p.Phrase] = true
			out = append(out, stt.KeywordBoost{Keyword: p.Phrase, Boost: 2})
		}
	}
	return out
}

// Reset clears the rolling buffer. Called at the start of every wake listen.
func (s *Spotter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words = s.words[:0]
}

// Buffered returns a copy of the rolling buffer.
func (s *Spotter) Buffered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.words...)
}

// Evaluate matches ev against the wake table. For a final transcript the
// buffered text is tried first, then the transcript alone; a successful
// final match clears the buffer.
func (s *Spotter) Evaluate(ev stt.Transcript) (Match, bool) {
	cc := s.cfg.Load()
	text := clean(ev.Text)
	if text == "" {
		return Match{}, false
	}
	if !ev.IsFinal {
		m, ok := cc.match(text, true)
		m.Partial = ok
		return m, ok
	}

	s.mu.Lock()
	s.words = append(s.words, strings.Fields(text)...)
	if n := len(s.words); n > cc.Window {
		s.words = append(s.words[:0], s.words[n-cc.Window:]...)
	}
	buffered := strings.Join(s.words, " ")
	s.mu.Unlock()

	m, ok := cc.match(buffered, false)
	if !ok && buffered != text {
		m, ok = cc.match(text, false)
	}
	if ok {
		s.Reset()
	}
	return m, ok
}

// match runs the stages against text, which must already be cleaned.
func (cc *compiled) match(text string, partial bool) (Match, bool) {
	accept := func(score, threshold float64) bool {
		if partial && score < cc.PartialThreshold {
			return false
		}
		return score >= threshold
	}

	if accept(exactScore, 0) {
		for _, p := range cc.Patterns {
			if i := strings.Index(text, p.Phrase); i >= 0 {
				return Match{Pattern: p.Phrase, Text: p.Phrase, Score: exactScore, Type: MatchExact,
					Remainder: after(text, i+len(p.Phrase))}, true
			}
		}
	}

	if accept(variationScore, 0) {
		for _, p := range cc.Patterns {
			for _, v := range p.Variations {
				if i := strings.Index(text, v); i >= 0 {
					return Match{Pattern: p.Phrase, Text: v, Score: variationScore, Type: MatchVariation,
						Remainder: after(text, i+len(v))}, true
				}
			}
		}
	}

	tokens := strings.Fields(text)

	if i, score := best(tokens, 1, func(tok string) float64 {
		return Similarity(tok, cc.primary)
	}); i >= 0 && accept(score, cc.TokenThreshold) {
		return cc.tokenMatch(tokens, i, 1, cc.primary, score, MatchFuzzyToken), true
	}

	if i, score := best(tokens, 1, func(tok string) float64 {
		return Similarity(cc.Phonetic.Normalize(tok), cc.primaryPhonetic)
	}); i >= 0 && accept(score, cc.PhoneticThreshold) {
		return cc.tokenMatch(tokens, i, 1, cc.primary, score, MatchPhonetic), true
	}

	if i, score := best(tokens, 2, func(window string) float64 {
		_, r := cc.bestPair(window)
		return r
	}); i >= 0 && accept(score, cc.PhraseThreshold) {
		phrase, _ := cc.bestPair(strings.Join(tokens[i:i+2], " "))
		return cc.tokenMatch(tokens, i, 2, phrase, score, MatchFuzzyPhrase), true
	}

	return Match{}, false
}

// bestPair returns the two-word phrase most similar to window.
func (cc *compiled) bestPair(window string) (string, float64) {
	var (
		pair string
		top  float64
	)
	for _, p := range cc.pairs {
		if r := Similarity(window, p); r > top {
			pair, top = p, r
		}
	}
	return pair, top
}

func (cc *compiled) tokenMatch(tokens []string, i, n int, pattern string, score float64, typ MatchType) Match {
	return Match{
		Pattern:   pattern,
		Text:      strings.Join(tokens[i:i+n], " "),
		Score:     score,
		Type:      typ,
		Remainder: strings.Join(tokens[i+n:], " "),
	}
}

// best scores every window of n adjacent tokens and returns the index and
// score of the highest, the earliest on ties. It returns -1 when there are
// fewer than n tokens.
func best(tokens []string, n int, score func(string) float64) (int, float64) {
	idx, top := -1, -1.0
	for i := 0; i+n <= len(tokens); i++ {
		if s := score(strings.Join(tokens[i:i+n], " ")); s > top {
			idx, top = i, s
		}
	}
	return idx, top
}

// after returns the words following byte offset end, skipping the rest of a
// word the match ended inside of.
func after(text string, end int) string {
	rest := text[end:]
	if rest != "" && rest[0] != ' ' {
		i := strings.IndexByte(rest, ' ')
		if i < 0 {
			return ""
		}
		rest = rest[i:]
	}
	return strings.TrimSpace(rest)
}
