// Package keywords scans complaint text for named keyword groups in one pass.
package keywords

import (
	"sort"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Hits is the set of groups that matched a text.
type Hits map[string]bool

// Has reports whether any of the groups matched.
func (h Hits) Has(groups ...string) bool {
	for _, g := range groups {
		if h[g] {
			return true
		}
	}
	return false
}

// Groups returns the matched group names in sorted order.
func (h Hits) Groups() []string {
	out := make([]string, 0, len(h))
	for g := range h {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Matcher holds one Aho-Corasick automaton over every group's keywords.
type Matcher struct {
	mu        sync.Mutex // the automaton keeps per-call state
	matcher   *ahocorasick.Matcher
	keywords  []string
	kwToGroup map[string][]string
}

// NewMatcher builds a matcher from group name to keyword list.
func NewMatcher(groups map[string][]string) *Matcher {
	m := &Matcher{kwToGroup: make(map[string][]string)}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, kw := range groups[name] {
			normalized := normalize(kw)
			if normalized == "" {
				continue
			}
			if _, seen := m.kwToGroup[normalized]; !seen {
				m.keywords = append(m.keywords, normalized)
			}
			m.kwToGroup[normalized] = append(m.kwToGroup[normalized], name)
		}
	}
	if len(m.keywords) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(m.keywords)
	}
	return m
}

// Match returns every group with at least one keyword occurring in text.
func (m *Matcher) Match(text string) Hits {
	hits := Hits{}
	if m == nil || m.matcher == nil {
		return hits
	}
	normalized := normalize(text)
	if normalized == "" {
		return hits
	}

	m.mu.Lock()
	indices := m.matcher.Match([]byte(normalized))
	m.mu.Unlock()

	for _, idx := range indices {
		if idx < 0 || idx >= len(m.keywords) {
			continue
		}
		for _, group := range m.kwToGroup[m.keywords[idx]] {
			hits[group] = true
		}
	}
	return hits
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
