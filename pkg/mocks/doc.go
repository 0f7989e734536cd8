// Package mocks selects synthetic responses for intercepted requests from
// configured mock definitions.
//
// Definitions are evaluated in configured order and the first eligible one
// wins. URL patterns may contain * wildcards; a pattern with no wildcard
// requires exact (case-insensitive) URL equality. A definition with an nth
// qualifier is eligible only on its pattern's nth qualifying call, tracked
// by a per-pattern hit counter.
//
// Response bodies are tagged values: either a literal string/JSON value or
// a reference to a file resolved relative to the configuration directory.
// The @-sentinel used in config files is parsed once at load time and never
// inspected again.
package mocks
