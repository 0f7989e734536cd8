// Package session defines the per-request context shared by all simulation
// plugins.
//
// A Session is created for each intercepted request, owned by the event bus
// for the request's lifetime, and discarded once the response is emitted.
// The response slot is written at most once; later writers lose and can
// check Handled to observe the outcome.
package session
