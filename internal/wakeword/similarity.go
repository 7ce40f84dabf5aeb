package wakeword

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), clamped to
// [0, 1]. Two empty strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	r := 1 - float64(matchr.Levenshtein(a, b))/float64(n)
	return min(max(r, 0), 1)
}

// clean lowercases text and reduces it to single-space separated words,
// dropping punctuation recognisers add ("Hey, Myra." → "hey myra").
func clean(text string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}), " ")
}
