// Package engine wires the simulation plugins to the event bus and exposes
// the entry points the interception engine calls for each unit of work.
//
// The default pipeline is, in order: URL rewriting, latency injection,
// throttling/random failures, mock responses, and a reporting observer.
// Each stateful plugin is gated by the configured URL watch list; the
// reporting observer sees every request regardless.
package engine
