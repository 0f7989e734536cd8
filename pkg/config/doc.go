// Package config loads the simulation configuration and exposes it as
// immutable, atomically swapped snapshots.
//
// The root options file names the watched URL patterns, throttling
// settings, and the mocks and rewrites files, which are resolved relative
// to its directory. A background watcher reloads the snapshot when any of
// the files change; readers never observe a partially updated rule set and
// never block on a reload.
//
// Missing or invalid configuration degrades to an empty rule set with a
// warning; it never stops the proxy.
package config
