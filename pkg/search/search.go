// Package search implements the story list filter.
//
// A query is split into terms; a record matches when every term occurs as a
// substring of its fields. All terms are found in a single Aho-Corasick pass.
package search

import (
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

var english = stopwords.MustGet("en")

// Matcher is a compiled query. The zero value matches everything.
type Matcher struct {
	terms []string
	ac    ahocorasick.AhoCorasick
}

// New compiles query. Stop words are dropped unless nothing else remains.
func New(query string) *Matcher {
	words := strings.Fields(Normalize(query))
	if len(words) == 0 {
		return &Matcher{}
	}

	terms := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if english.Contains(w) || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	if len(terms) == 0 {
		for _, w := range words {
			if !seen[w] {
				seen[w] = true
				terms = append(terms, w)
			}
		}
	}

	b := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: false, // input is lowercased by Normalize
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.StandardMatch, // required for IterOverlapping
	})
	return &Matcher{terms: terms, ac: b.Build(terms)}
}

// Terms returns the terms a record must contain.
func (m *Matcher) Terms() []string {
	return append([]string(nil), m.terms...)
}

// Match reports whether every term occurs in the given fields.
func (m *Matcher) Match(fields ...string) bool {
	if len(m.terms) == 0 {
		return true
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = Normalize(f)
	}
	haystack := strings.Join(parts, " ")

	found := make([]bool, len(m.terms))
	remaining := len(m.terms)
	iter := m.ac.IterOverlapping(haystack)
	for {
		match := iter.Next()
		if match == nil {
			break
		}
		if i := match.Pattern(); i < len(found) && !found[i] {
			found[i] = true
			remaining--
			if remaining == 0 {
				return true
			}
		}
	}
	return false
}

// Normalize lowercases s and turns everything but letters and digits into spaces.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
}
