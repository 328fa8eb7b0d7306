// Package answer normalizes free text guesses so equivalent spellings compare equal.
package answer

import (
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

func apply(s string, keep func(rune) bool) string {
	// cases.Caser carries state, so the chain is built per call
	t := transform.Chain(
		norm.NFKD,
		cases.Upper(language.Und),
		norm.NFKD,
		runes.Remove(runes.Predicate(func(r rune) bool { return !keep(r) })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		// only reachable on a transformer bug; fall back to the slow path
		return fallback(s, keep)
	}
	return out
}

func fallback(s string, keep func(rune) bool) string {
	decomposed := []rune(norm.NFKD.String(s))
	out := make([]rune, 0, len(decomposed))
	for _, r := range decomposed {
		r = unicode.ToUpper(r)
		if keep(r) {
			out = append(out, r)
		}
	}
	return string(out)
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isLetterOrNumber(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Normalize decomposes, uppercases and keeps only letters.
//
// The result is the canonical form stored for every submission and compared against the puzzle's
// normalized answer. An empty result means the guess can never be correct.
func Normalize(s string) string {
	return apply(s, isLetter)
}

// SemiClean is Normalize that also keeps digits. Canned puzzle messages are matched against it.
func SemiClean(s string) string {
	return apply(s, isLetterOrNumber)
}

// Equal reports whether a guess matches an answer after normalization.
func Equal(guess string, solution string) bool {
	n := Normalize(guess)
	return n != "" && n == Normalize(solution)
}
