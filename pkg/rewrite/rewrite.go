// Package rewrite applies ordered, cumulative URL rewrites to intercepted
// requests.
package rewrite

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
)

// Rule is a single rewrite: a match pattern and an output template that may
// reference capture groups from the pattern ($1, $2, ...).
type Rule struct {
	In  string `json:"in" yaml:"in"`
	Out string `json:"out" yaml:"out"`
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Engine applies a fixed, ordered list of rewrite rules. Every rule is
// evaluated in sequence against the progressively rewritten URL, so rules
// compose. Matching is case-insensitive.
type Engine struct {
	rules []compiledRule
	log   *slog.Logger
}

// NewEngine compiles the given rules into an Engine.
func NewEngine(rules []Rule) (*Engine, error) {
	e := &Engine{log: logging.Nop()}
	for i, r := range rules {
		re, err := regexp.Compile("(?i)" + r.In)
		if err != nil {
			return nil, fmt.Errorf("invalid rewrite pattern %q (rule %d): %w", r.In, i, err)
		}
		e.rules = append(e.rules, compiledRule{rule: r, re: re})
	}
	return e, nil
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(log *slog.Logger) {
	if log != nil {
		e.log = log
	}
}

// Len returns the number of configured rules.
func (e *Engine) Len() int { return len(e.rules) }

// Apply runs every rule against the URL in order and returns the final URL.
// A step whose output equals its input is a no-op and is logged as skipped;
// any other step is logged as processed.
func (e *Engine) Apply(url string) string {
	current := url
	for _, cr := range e.rules {
		rewritten := cr.re.ReplaceAllString(current, cr.rule.Out)
		if rewritten == current {
			e.log.Debug("rewrite skipped", "pattern", cr.rule.In, "url", current)
			metrics.RewritesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		e.log.Info("rewrite processed",
			"pattern", cr.rule.In,
			"from", current,
			"to", rewritten,
		)
		metrics.RewritesTotal.WithLabelValues("processed").Inc()
		current = rewritten
	}
	return current
}
