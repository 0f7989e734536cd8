package config

import (
	"fmt"
	"time"

	"github.com/getmockd/interceptd/pkg/mocks"
	"github.com/getmockd/interceptd/pkg/rewrite"
	"github.com/getmockd/interceptd/pkg/throttle"
	"github.com/getmockd/interceptd/pkg/watch"
)

// Options is the root configuration file schema.
type Options struct {
	// URLsToWatch are glob patterns gating which requests are simulated.
	// A leading ! marks an exclusion; exclusion always wins.
	URLsToWatch []string `json:"urlsToWatch" yaml:"urlsToWatch"`

	// BlockUnmockedRequests makes the mock engine answer 502 for watched
	// requests no definition covers.
	BlockUnmockedRequests bool `json:"blockUnmockedRequests,omitempty" yaml:"blockUnmockedRequests,omitempty"`

	// Recording is the initial recording state.
	Recording bool `json:"recording,omitempty" yaml:"recording,omitempty"`

	// Throttling configures the throttle/chaos engine.
	Throttling ThrottleOptions `json:"throttling,omitempty" yaml:"throttling,omitempty"`

	// Latency, when set, injects a random artificial delay into watched
	// requests.
	Latency *LatencyOptions `json:"latency,omitempty" yaml:"latency,omitempty"`

	// MocksFile and RewritesFile are paths resolved relative to this
	// file's directory.
	MocksFile    string `json:"mocksFile,omitempty" yaml:"mocksFile,omitempty"`
	RewritesFile string `json:"rewritesFile,omitempty" yaml:"rewritesFile,omitempty"`
}

// Validate checks the options for values that cannot be compiled.
func (o *Options) Validate() error {
	if o.Throttling.Rate < 0 || o.Throttling.Rate > 100 {
		return fmt.Errorf("throttling.rate must be in [0, 100], got %d", o.Throttling.Rate)
	}
	if o.Throttling.RetryAfterSeconds < 0 {
		return fmt.Errorf("throttling.retryAfterSeconds must be >= 0, got %d", o.Throttling.RetryAfterSeconds)
	}
	if o.Latency != nil && (o.Latency.MinMs < 0 || o.Latency.MaxMs < 0) {
		return fmt.Errorf("latency bounds must be >= 0")
	}
	return nil
}

// ThrottleOptions is the throttling section of the root file.
type ThrottleOptions struct {
	// Rate is the failure percentage in [0, 100].
	Rate int `json:"rate,omitempty" yaml:"rate,omitempty"`

	// RetryAfterSeconds is the cool-down window (default 5).
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty" yaml:"retryAfterSeconds,omitempty"`

	// ReadStatusCodes and WriteStatusCodes override the random-failure
	// status pools.
	ReadStatusCodes  []int `json:"readStatusCodes,omitempty" yaml:"readStatusCodes,omitempty"`
	WriteStatusCodes []int `json:"writeStatusCodes,omitempty" yaml:"writeStatusCodes,omitempty"`
}

// engineConfig converts the file schema into the throttle engine's config.
func (t ThrottleOptions) engineConfig() throttle.Config {
	return throttle.Config{
		Rate:             t.Rate,
		RetryAfter:       time.Duration(t.RetryAfterSeconds) * time.Second,
		ReadStatusCodes:  t.ReadStatusCodes,
		WriteStatusCodes: t.WriteStatusCodes,
	}
}

// LatencyOptions is the latency injection section of the root file.
type LatencyOptions struct {
	MinMs int `json:"minMs,omitempty" yaml:"minMs,omitempty"`
	MaxMs int `json:"maxMs,omitempty" yaml:"maxMs,omitempty"`
}

// MocksFile is the mock definitions file schema.
type MocksFile struct {
	Responses []mocks.Definition `json:"responses" yaml:"responses"`
}

// RewritesFile is the rewrites file schema.
type RewritesFile struct {
	Rewrites []RewriteConfig `json:"rewrites" yaml:"rewrites"`
}

// RewriteConfig is one rewrite rule as configured.
type RewriteConfig struct {
	In  RewriteURL `json:"in" yaml:"in"`
	Out RewriteURL `json:"out" yaml:"out"`
}

// RewriteURL wraps the url field of a rewrite side.
type RewriteURL struct {
	URL string `json:"url" yaml:"url"`
}

// Snapshot is an immutable aggregate of all compiled configuration. It is
// built once per (re)load and swapped in atomically; in-flight requests
// keep the snapshot they started with.
type Snapshot struct {
	// Path is the root options file the snapshot was loaded from.
	Path string

	// BaseDir is the directory mock body file references resolve against.
	BaseDir string

	Options Options

	Watch    *watch.List
	Mocks    *mocks.Set
	Rewrites *rewrite.Engine
	Throttle throttle.Config

	LoadedAt time.Time
}

// EmptySnapshot returns a snapshot with no rules, used as the fallback when
// configuration cannot be loaded.
func EmptySnapshot(path string) *Snapshot {
	w, _ := watch.NewList(nil)
	m, _ := mocks.NewSet(nil)
	r, _ := rewrite.NewEngine(nil)
	return &Snapshot{
		Path:     path,
		Watch:    w,
		Mocks:    m,
		Rewrites: r,
		Throttle: ThrottleOptions{}.engineConfig(),
		LoadedAt: time.Now(),
	}
}
