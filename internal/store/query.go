// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"regexp"
	"sort"
	"strings"

	"github.com/qolzam/docstore/internal/store/filter"
	"github.com/qolzam/docstore/internal/store/search"
)

// KeywordsField holds the keyword set written by Text and Word and matched
// by Query.
const KeywordsField = "keywords"

var templateToken = regexp.MustCompile(`^(!)?(\w+):([^()=><]+)$`)

// Text tokenizes text and appends every keyword to the keywords field
func (c *Cursor[T]) Text(text string) *Cursor[T] {
	return c.appendKeywords(search.Tokenize(text))
}

// Word appends a single normalized word to the keywords field
func (c *Cursor[T]) Word(word string) *Cursor[T] {
	var s search.Search
	s.Add(word)
	return c.appendKeywords(s.Set())
}

func (c *Cursor[T]) appendKeywords(words []string) *Cursor[T] {
	values := make([]interface{}, len(words))
	for i, w := range words {
		values[i] = w
	}
	return c.Append(KeywordsField, values...)
}

// Query conjoins a search query. Tokens of the form name:value or
// !name:value whose name is a key of templates expand into that template
// with value substituted, negated with !. Other tokens are keywords that
// must be present, or absent when prefixed with -.
func (c *Cursor[T]) Query(q string, templates map[string]string) *Cursor[T] {
	var fragments []string
	include := map[string]struct{}{}
	exclude := map[string]struct{}{}

	for _, token := range strings.Fields(q) {
		if m := templateToken.FindStringSubmatch(token); m != nil {
			if tmpl, ok := templates[m[2]]; ok {
				fragment := wrap(filter.Format(tmpl, m[3]))
				if m[1] != "" {
					fragment = "(!" + fragment + ")"
				}
				fragments = append(fragments, fragment)
				continue
			}
		}
		words := include
		if strings.HasPrefix(token, "-") {
			words = exclude
			token = token[1:]
		}
		for _, w := range search.Tokenize(token) {
			words[w] = struct{}{}
		}
	}

	for _, w := range sorted(include) {
		fragments = append(fragments, "("+KeywordsField+"="+filter.Escape(w)+")")
	}
	for _, w := range sorted(exclude) {
		fragments = append(fragments, "(!("+KeywordsField+"="+filter.Escape(w)+"))")
	}
	if len(fragments) == 0 {
		return c
	}
	return c.Where("(&" + strings.Join(fragments, "") + ")")
}

func wrap(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if strings.HasPrefix(fragment, "(") {
		return fragment
	}
	return "(" + fragment + ")"
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
