// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package search turns free text into the keyword set stored with documents
// for keyword queries.
package search

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Search accumulates keywords. The zero value is ready to use.
type Search struct {
	words map[string]struct{}
}

// Tokenize returns the sorted keyword set of text.
func Tokenize(text string) []string {
	var s Search
	s.AddAll(text)
	return s.Set()
}

// AddAll tokenizes text and adds every keyword.
func (s *Search) AddAll(text string) {
	for _, word := range strings.FieldsFunc(Normalize(text), isSeparator) {
		s.add(word)
	}
}

// Add adds a single word after normalizing it. Separators inside the word
// split it into several keywords.
func (s *Search) Add(word string) {
	s.AddAll(word)
}

func (s *Search) add(word string) {
	if s.words == nil {
		s.words = make(map[string]struct{})
	}
	s.words[word] = struct{}{}
}

// Set returns the keywords in sorted order.
func (s *Search) Set() []string {
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Normalize case folds text and strips diacritics, so "Émile" and "emile"
// yield the same keyword.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return strings.ToLower(text)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
