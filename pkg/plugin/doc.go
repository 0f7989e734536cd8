// Package plugin defines the event bus that drives the simulation
// pipeline.
//
// Plugins are registered once at startup in a fixed order and implement
// only the stage callbacks they need. Stages fire in the process order
// Init, OptionsLoaded, BeforeRequest, BeforeResponse, AfterResponse,
// AfterRecordingStop. Within a stage every registered plugin runs in
// registration order, even when an earlier plugin already produced a
// response — observers are never starved by a mock or error plugin. A
// panic inside one plugin's handler is recovered at the bus boundary,
// logged with the plugin's identity, and does not halt the stage or the
// process.
package plugin
