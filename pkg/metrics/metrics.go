// Package metrics exposes Prometheus instrumentation for the simulation
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts intercepted requests by whether they were watched.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interceptd",
		Name:      "requests_total",
		Help:      "Intercepted requests, labeled by watch gate outcome.",
	}, []string{"watched"})

	// ThrottleOutcomes counts throttle engine classifications.
	ThrottleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interceptd",
		Name:      "throttle_outcomes_total",
		Help:      "Throttle engine classifications (throttled, random_fail, pass_through).",
	}, []string{"outcome"})

	// MockHits counts mock selections by URL pattern.
	MockHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interceptd",
		Name:      "mock_hits_total",
		Help:      "Mock definitions served, labeled by URL pattern.",
	}, []string{"pattern"})

	// RewritesTotal counts rewrite rule applications.
	RewritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interceptd",
		Name:      "rewrites_total",
		Help:      "Rewrite rule evaluations (processed or skipped).",
	}, []string{"result"})

	// ConfigReloads counts configuration snapshot swaps.
	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interceptd",
		Name:      "config_reloads_total",
		Help:      "Configuration reloads, labeled by result.",
	}, []string{"result"})

	// PluginFaults counts recovered plugin panics by plugin and stage.
	PluginFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "interceptd",
		Name:      "plugin_faults_total",
		Help:      "Plugin handler faults recovered at the event bus boundary.",
	}, []string{"plugin", "stage"})

	// TokensIssued counts bearer tokens issued by the token surface.
	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "interceptd",
		Name:      "tokens_issued_total",
		Help:      "Ephemeral bearer tokens issued.",
	})
)
