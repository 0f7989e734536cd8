package mocks

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// compiledDef pairs a definition with its compiled URL pattern. Definitions
// without wildcards skip regex matching entirely.
type compiledDef struct {
	def *Definition
	re  *regexp.Regexp // nil for exact-match patterns
}

// Set is an ordered collection of mock definitions plus the per-pattern hit
// counters used by nth qualifiers. The counter map is guarded by a mutex so
// concurrent requests to the same pattern observe serialized counts.
type Set struct {
	defs []compiledDef

	mu   sync.Mutex
	hits map[string]int
}

// NewSet compiles definitions into a Set, preserving order.
func NewSet(defs []Definition) (*Set, error) {
	s := &Set{hits: make(map[string]int)}
	for i := range defs {
		d := &defs[i]
		cd := compiledDef{def: d}
		if strings.Contains(d.URL, "*") {
			re, err := regexp.Compile(patternToRegexp(d.URL))
			if err != nil {
				return nil, fmt.Errorf("invalid mock URL pattern %q: %w", d.URL, err)
			}
			cd.re = re
		}
		s.defs = append(s.defs, cd)
	}
	return s, nil
}

// patternToRegexp converts a mock URL pattern into an anchored
// case-insensitive regex source: every character is escaped except *,
// which maps to .*.
func patternToRegexp(pattern string) string {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return "(?i)^" + strings.Join(parts, ".*") + "$"
}

// Len returns the number of definitions in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.defs)
}

// Match returns the first eligible definition for the method and absolute
// URL, or nil. Evaluating a matching definition increments its pattern's
// hit counter; an nth-qualified definition is eligible only when the new
// count equals nth.
func (s *Set) Match(method, url string) *Definition {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cd := range s.defs {
		d := cd.def
		if !strings.EqualFold(d.Method, method) {
			continue
		}
		if cd.re != nil {
			if !cd.re.MatchString(url) {
				continue
			}
		} else if !strings.EqualFold(d.URL, url) {
			continue
		}

		s.hits[d.URL]++
		if d.Nth != 0 && s.hits[d.URL] != d.Nth {
			continue
		}
		return d
	}
	return nil
}

// Hits returns the current hit count for a URL pattern.
func (s *Set) Hits(pattern string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[pattern]
}
