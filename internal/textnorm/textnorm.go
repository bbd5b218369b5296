// Package textnorm holds the text normalisation shared by the phrase lists,
// filter triggers and the spam window keys.
package textnorm

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Word boundaries are "not a letter, digit or underscore". Go's \b is ASCII
// only, so patterns spell the boundary out.
const (
	leftBoundary  = `(?:^|[^\pL\pN_])`
	rightBoundary = `(?:$|[^\pL\pN_])`
	wordChars     = `[\pL\pN_]`
)

// Normalize lower-cases text and trims surrounding whitespace. It is the key
// used for spam windows, whitelist lookups and filter matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// look-alikes commonly used to dodge word lists
var substitutions = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	// cyrillic
	'а': 'a',
	'в': 'b',
	'е': 'e',
	'к': 'k',
	'м': 'm',
	'н': 'h',
	'о': 'o',
	'р': 'p',
	'с': 'c',
	'т': 't',
	'у': 'y',
	'х': 'x',
	'і': 'i',
	// greek
	'α': 'a',
	'ο': 'o',
	'ρ': 'p',
	'ν': 'v',
}

// Fold lower-cases text, strips combining marks and maps common look-alike
// characters to their latin counterparts.
func Fold(text string) string {
	// transformers are stateful; build a fresh chain per call
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		slog.Warn("unicode normalization error", "error", err)
		folded = strings.ToLower(text)
	}
	return strings.Map(func(r rune) rune {
		if s, ok := substitutions[r]; ok {
			return s
		}
		return r
	}, folded)
}

// WordPattern compiles a case-insensitive pattern matching term as a whole
// word. suffix is an optional regexp fragment allowed directly after the term
// (before the right boundary).
func WordPattern(term, suffix string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + leftBoundary + regexp.QuoteMeta(term) + suffix + rightBoundary)
}

// UnderscoreSuffix allows "term_anything" after a term.
const UnderscoreSuffix = `(?:_` + wordChars + `+)?`
