// Package textnorm canonicalizes patient free text for keyword detection.
// Matching must survive accents, casing and punctuation ("Está com DOR?"
// and "esta com dor" are the same question).
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented characters and drops the combining marks,
// so "emergência" folds to "emergencia".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize strips diacritics, lower-cases, replaces punctuation with
// spaces and collapses whitespace. It is pure and idempotent; empty input
// normalizes to the empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	folded, _, err := transform.String(stripMarks, text)
	if err != nil {
		// Transform failures only happen on invalid UTF-8; fall back to
		// the raw text rather than dropping the question.
		folded = text
	}

	folded = strings.ToLower(folded)
	folded = punctRe.ReplaceAllString(folded, " ")
	folded = whitespaceRe.ReplaceAllString(folded, " ")
	return strings.TrimSpace(folded)
}

// ContainsKeyword reports whether keyword occurs in text after both are
// normalized. Matching is word-bounded so "dor" does not match inside
// "adorei".
func ContainsKeyword(text, keyword string) bool {
	normalizedKeyword := Normalize(keyword)
	if normalizedKeyword == "" {
		return false
	}

	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(normalizedKeyword) + `\b`)
	if err != nil {
		return false
	}
	return pattern.MatchString(Normalize(text))
}

// Match is the result of scanning a text against a keyword list.
type Match struct {
	Found   bool
	Keyword string
}

// FindKeyword returns the first keyword from the list found in text.
// List order is significant: callers encode priority in it.
func FindKeyword(text string, keywords []string) Match {
	for _, keyword := range keywords {
		if ContainsKeyword(text, keyword) {
			return Match{Found: true, Keyword: keyword}
		}
	}
	return Match{}
}
