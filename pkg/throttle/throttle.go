// Package throttle injects throttling and random failures into watched
// requests.
//
// The engine keeps one record per throttle key holding the time the key
// becomes available again. Calls inside the window are rejected with 429
// and push the window further out; the first call after the window elapses
// is passed through and clears the record. That free pass is honored even
// with a 100% failure rate — clients that backed off correctly get exactly
// one successful call before the dice roll applies again, mirroring the
// behavior of real throttling backends this engine simulates.
package throttle

import (
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
)

// Classification is the outcome of a throttle decision.
type Classification string

// Classifications.
const (
	Throttled   Classification = "throttled"
	RandomFail  Classification = "random_fail"
	PassThrough Classification = "pass_through"
)

// DefaultRetryAfter is the cool-down window applied when none is configured.
const DefaultRetryAfter = 5 * time.Second

// Default status code pools, modeled on common throttling backends.
// Mutating methods can additionally fail with length/storage errors.
var (
	DefaultReadStatusCodes  = []int{429, 500, 502, 503, 504}
	DefaultWriteStatusCodes = []int{411, 429, 500, 502, 503, 504, 507}
)

// Config configures the throttle engine.
type Config struct {
	// Rate is the failure percentage in [0, 100]. A draw in [1, 100] at or
	// below Rate produces a random failure.
	Rate int `json:"rate" yaml:"rate"`

	// RetryAfter is the cool-down window for throttled keys.
	RetryAfter time.Duration `json:"-" yaml:"-"`

	// ReadStatusCodes and WriteStatusCodes are the method-specific pools a
	// random failure status is drawn from.
	ReadStatusCodes  []int `json:"readStatusCodes,omitempty" yaml:"readStatusCodes,omitempty"`
	WriteStatusCodes []int `json:"writeStatusCodes,omitempty" yaml:"writeStatusCodes,omitempty"`
}

// withDefaults fills zero values with defaults and clamps the rate.
func (c Config) withDefaults() Config {
	if c.Rate < 0 {
		c.Rate = 0
	}
	if c.Rate > 100 {
		c.Rate = 100
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = DefaultRetryAfter
	}
	if len(c.ReadStatusCodes) == 0 {
		c.ReadStatusCodes = DefaultReadStatusCodes
	}
	if len(c.WriteStatusCodes) == 0 {
		c.WriteStatusCodes = DefaultWriteStatusCodes
	}
	return c
}

// Decision is the result of classifying one request.
type Decision struct {
	Classification Classification
	// StatusCode is set for Throttled and RandomFail outcomes.
	StatusCode int
	// RetryAfter is set when StatusCode is 429.
	RetryAfter time.Duration
}

// Engine is the stateful failure injector. Safe for concurrent use; the
// record map and RNG are guarded by a single mutex so concurrent requests
// to the same key observe serialized timestamp updates.
type Engine struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	records map[string]time.Time // key -> available-again timestamp
	rng     *rand.Rand
}

// NewEngine creates a throttle engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		log:     logging.Nop(),
		records: make(map[string]time.Time),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(log *slog.Logger) {
	if log != nil {
		e.log = log
	}
}

// KeyForURL derives the throttle key for a request URL: the host plus the
// first path segment, lowercased. Requests to the same resource/workload
// class share rate-limit accounting.
func KeyForURL(u *url.URL) string {
	key := u.Host
	path := strings.TrimPrefix(u.Path, "/")
	if seg, _, found := strings.Cut(path, "/"); found || seg != "" {
		key += "/" + seg
	}
	return strings.ToLower(key)
}

// Decide classifies one request for the given method and throttle key.
func (e *Engine) Decide(method, key string) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()

	if until, ok := e.records[key]; ok {
		if now.Before(until) {
			// Still inside the window: reject and extend, penalizing
			// callers that ignore Retry-After.
			e.records[key] = now.Add(e.cfg.RetryAfter)
			return e.classified(Decision{
				Classification: Throttled,
				StatusCode:     http.StatusTooManyRequests,
				RetryAfter:     e.cfg.RetryAfter,
			}, key)
		}
		// Window elapsed: clear the record and grant one free pass,
		// independent of the random draw below.
		delete(e.records, key)
		return e.classified(Decision{Classification: PassThrough}, key)
	}

	if draw := e.rng.Intn(100) + 1; draw <= e.cfg.Rate {
		status := e.pickStatus(method)
		if status == http.StatusTooManyRequests {
			e.records[key] = now.Add(e.cfg.RetryAfter)
			return e.classified(Decision{
				Classification: RandomFail,
				StatusCode:     status,
				RetryAfter:     e.cfg.RetryAfter,
			}, key)
		}
		return e.classified(Decision{Classification: RandomFail, StatusCode: status}, key)
	}

	return e.classified(Decision{Classification: PassThrough}, key)
}

// pickStatus draws a uniformly random status code from the method's pool.
// Caller must hold e.mu.
func (e *Engine) pickStatus(method string) int {
	pool := e.cfg.WriteStatusCodes
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		pool = e.cfg.ReadStatusCodes
	}
	return pool[e.rng.Intn(len(pool))]
}

// classified logs and counts a decision before returning it.
func (e *Engine) classified(d Decision, key string) Decision {
	e.log.Info("throttle decision",
		"outcome", string(d.Classification),
		"key", key,
		"status", d.StatusCode,
	)
	metrics.ThrottleOutcomes.WithLabelValues(string(d.Classification)).Inc()
	return d
}

// ActiveRecords returns the number of keys currently tracked. Intended for
// diagnostics.
func (e *Engine) ActiveRecords() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.records)
}

// Reset clears all throttle records.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = make(map[string]time.Time)
}
