// Package watch decides which intercepted requests are subject to
// simulation.
//
// Watch patterns use glob syntax where * matches any character sequence.
// A pattern prefixed with ! is an exclusion. A URL is watched iff it
// matches at least one include pattern and no exclude pattern; exclusion
// always wins. Matching is case-insensitive against the full URL.
package watch

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a compiled watch pattern with its polarity. Immutable once
// compiled; the whole list is replaced on config reload.
type Pattern struct {
	raw     string
	exclude bool
	re      *regexp.Regexp
}

// Raw returns the pattern as configured, including any ! prefix.
func (p *Pattern) Raw() string { return p.raw }

// Exclude reports whether this is an exclusion pattern.
func (p *Pattern) Exclude() bool { return p.exclude }

// Compile converts a glob watch pattern into a Pattern. Every character is
// matched literally except *, which becomes .*; the regex is anchored and
// case-insensitive.
func Compile(glob string) (*Pattern, error) {
	raw := glob
	exclude := strings.HasPrefix(glob, "!")
	if exclude {
		glob = glob[1:]
	}
	re, err := regexp.Compile(GlobToRegexp(glob))
	if err != nil {
		return nil, fmt.Errorf("invalid watch pattern %q: %w", raw, err)
	}
	return &Pattern{raw: raw, exclude: exclude, re: re}, nil
}

// GlobToRegexp converts a glob into an anchored case-insensitive regular
// expression source string.
func GlobToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, part := range strings.Split(glob, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	s := b.String()
	// Split always yields one trailing segment, so one surplus .* remains.
	s = strings.TrimSuffix(s, ".*")
	return s + "$"
}

// List is an ordered set of compiled watch patterns.
type List struct {
	patterns []*Pattern
}

// NewList compiles the given globs into a List. Compilation stops at the
// first invalid pattern.
func NewList(globs []string) (*List, error) {
	l := &List{}
	for _, g := range globs {
		p, err := Compile(g)
		if err != nil {
			return nil, err
		}
		l.patterns = append(l.patterns, p)
	}
	return l, nil
}

// Empty reports whether the list has no patterns.
func (l *List) Empty() bool { return l == nil || len(l.patterns) == 0 }

// Matches reports whether the URL is watched: at least one include pattern
// matches and no exclude pattern does.
func (l *List) Matches(url string) bool {
	if l == nil {
		return false
	}
	included := false
	for _, p := range l.patterns {
		if !p.re.MatchString(url) {
			continue
		}
		if p.exclude {
			return false
		}
		included = true
	}
	return included
}

// Patterns returns the compiled patterns in order.
func (l *List) Patterns() []*Pattern {
	if l == nil {
		return nil
	}
	return l.patterns
}
