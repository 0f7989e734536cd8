package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/mocks"
	"github.com/getmockd/interceptd/pkg/session"
	"github.com/getmockd/interceptd/pkg/throttle"
	"github.com/getmockd/interceptd/pkg/util"
)

// watched reports whether the session's current URL passes the snapshot's
// watch gate. Requests outside the watch list skip every stateful plugin.
func watched(ctx context.Context, s *session.Session) bool {
	snap := snapshotFrom(ctx)
	return snap != nil && snap.Watch.Matches(s.URL.String())
}

// RewritePlugin applies the configured URL rewrites to watched requests.
type RewritePlugin struct {
	log *slog.Logger
}

// NewRewritePlugin creates the rewrite plugin.
func NewRewritePlugin(log *slog.Logger) *RewritePlugin {
	return &RewritePlugin{log: log}
}

// Name implements plugin.Plugin.
func (p *RewritePlugin) Name() string { return "rewrite" }

// OptionsLoaded attaches the plugin's logger to the snapshot's engine.
func (p *RewritePlugin) OptionsLoaded(snap *config.Snapshot) {
	snap.Rewrites.SetLogger(p.log)
}

// BeforeRequest rewrites the session URL through the snapshot's rule chain.
func (p *RewritePlugin) BeforeRequest(ctx context.Context, s *session.Session) {
	if !watched(ctx, s) {
		return
	}
	snap := snapshotFrom(ctx)

	original := s.URL.String()
	rewritten := snap.Rewrites.Apply(original)
	if rewritten == original {
		return
	}
	u, err := url.Parse(rewritten)
	if err != nil {
		p.log.Error("rewrite produced invalid URL, keeping original",
			"from", original, "to", rewritten, "error", err)
		return
	}
	s.SetURL(u)
}

// LatencyPlugin injects a random artificial delay into watched requests.
// The sleep is cancellable: an aborted client connection cancels the
// request context and ends the delay immediately.
type LatencyPlugin struct {
	log *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLatencyPlugin creates the latency plugin.
func NewLatencyPlugin(log *slog.Logger) *LatencyPlugin {
	return &LatencyPlugin{
		log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements plugin.Plugin.
func (p *LatencyPlugin) Name() string { return "latency" }

// BeforeRequest sleeps for a random duration inside the configured range.
func (p *LatencyPlugin) BeforeRequest(ctx context.Context, s *session.Session) {
	snap := snapshotFrom(ctx)
	if snap == nil || snap.Options.Latency == nil || !watched(ctx, s) {
		return
	}

	lat := snap.Options.Latency
	minDur := time.Duration(lat.MinMs) * time.Millisecond
	maxDur := time.Duration(lat.MaxMs) * time.Millisecond
	if maxDur < minDur {
		minDur, maxDur = maxDur, minDur
	}
	delay := minDur
	if maxDur > minDur {
		p.mu.Lock()
		delay = minDur + time.Duration(p.rng.Int63n(int64(maxDur-minDur)))
		p.mu.Unlock()
	}
	if delay <= 0 {
		return
	}

	p.log.Debug("injecting latency", "url", s.URL.String(), "delay", delay)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// ThrottlePlugin classifies watched requests through the throttle engine
// and synthesizes 429/random-failure responses.
type ThrottlePlugin struct {
	log *slog.Logger

	mu     sync.Mutex
	engine *throttle.Engine
}

// NewThrottlePlugin creates the throttle plugin with default settings; the
// engine is rebuilt when a configuration snapshot arrives.
func NewThrottlePlugin(log *slog.Logger) *ThrottlePlugin {
	p := &ThrottlePlugin{log: log}
	p.engine = throttle.NewEngine(throttle.Config{})
	p.engine.SetLogger(log)
	return p
}

// Name implements plugin.Plugin.
func (p *ThrottlePlugin) Name() string { return "throttle" }

// OptionsLoaded rebuilds the throttle engine from the new snapshot.
// Throttle records do not survive a reload; a fresh rule set starts clean.
func (p *ThrottlePlugin) OptionsLoaded(snap *config.Snapshot) {
	engine := throttle.NewEngine(snap.Throttle)
	engine.SetLogger(p.log)

	p.mu.Lock()
	p.engine = engine
	p.mu.Unlock()
}

// BeforeRequest classifies the request and, for failures, writes the
// synthesized response.
func (p *ThrottlePlugin) BeforeRequest(ctx context.Context, s *session.Session) {
	if s.Handled() || !watched(ctx, s) {
		return
	}
	snap := snapshotFrom(ctx)
	if snap.Throttle.Rate <= 0 {
		return
	}

	p.mu.Lock()
	engine := p.engine
	p.mu.Unlock()

	decision := engine.Decide(s.Method, throttle.KeyForURL(s.URL))
	if decision.Classification == throttle.PassThrough {
		return
	}
	s.SetResponse(failureResponse(s, decision))
}

// failureResponse synthesizes the response for a throttled or random-fail
// decision.
func failureResponse(s *session.Session, d throttle.Decision) *session.Response {
	resp := session.NewResponse(d.StatusCode)
	resp.Header.Set(mocks.HeaderRequestID, s.ID)
	resp.Header.Set("Content-Type", "application/json")

	body := map[string]interface{}{
		"error": http.StatusText(d.StatusCode),
	}
	if d.RetryAfter > 0 {
		secs := int(d.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		resp.Header.Set("Retry-After", strconv.Itoa(secs))
		body["retry_after"] = secs
	}
	data, err := json.Marshal(body)
	if err != nil {
		data = []byte(`{"error":"simulated failure"}`)
	}
	resp.Body = data
	return resp
}

// MockPlugin serves synthetic responses from the snapshot's mock set.
type MockPlugin struct {
	log *slog.Logger
}

// NewMockPlugin creates the mock plugin.
func NewMockPlugin(log *slog.Logger) *MockPlugin {
	return &MockPlugin{log: log}
}

// Name implements plugin.Plugin.
func (p *MockPlugin) Name() string { return "mocks" }

// BeforeRequest selects and serves the first eligible mock definition. With
// blocking enabled, watched requests without a matching definition get a
// synthesized 502.
func (p *MockPlugin) BeforeRequest(ctx context.Context, s *session.Session) {
	if s.Handled() || !watched(ctx, s) {
		return
	}
	snap := snapshotFrom(ctx)

	responder := mocks.NewResponder(snap.BaseDir)
	responder.SetLogger(p.log)

	if def := snap.Mocks.Match(s.Method, s.URL.String()); def != nil {
		s.SetResponse(responder.Build(def, s))
		return
	}
	if snap.Options.BlockUnmockedRequests {
		s.SetResponse(responder.Blocked(s))
	}
}

// ReportPlugin observes every request and logs outcomes. While recording is
// on it accumulates a per-run request count, flushed when recording stops.
type ReportPlugin struct {
	log    *slog.Logger
	engine *Engine

	mu       sync.Mutex
	recorded int
}

// NewReportPlugin creates the reporting observer.
func NewReportPlugin(log *slog.Logger, e *Engine) *ReportPlugin {
	return &ReportPlugin{log: log, engine: e}
}

// Name implements plugin.Plugin.
func (p *ReportPlugin) Name() string { return "report" }

// AfterResponse logs the outcome of every session, handled or not.
func (p *ReportPlugin) AfterResponse(ctx context.Context, s *session.Session) {
	status := 0
	if resp := s.Response(); resp != nil {
		status = resp.StatusCode
	}
	p.log.Info("request completed",
		"id", s.ID,
		"method", s.Method,
		"url", s.URL.String(),
		"handled", s.Handled(),
		"status", status,
		"duration", time.Since(s.StartedAt),
		"client", p.clientName(ctx, s),
	)
	p.log.Debug("request body", "id", s.ID, "body", util.TruncateBody(string(s.Body), 0))

	if p.engine != nil && p.engine.Recording() {
		p.mu.Lock()
		p.recorded++
		p.mu.Unlock()
	}
}

// clientName resolves the session's remote address to a host name for the
// report line. The lookup is a best-effort enrichment, only attempted at
// debug verbosity; a failed lookup is logged and skipped, never propagated
// to the request.
func (p *ReportPlugin) clientName(ctx context.Context, s *session.Session) string {
	if s.RemoteAddr == "" || !p.log.Enabled(ctx, slog.LevelDebug) {
		return s.RemoteAddr
	}
	host, _, err := net.SplitHostPort(s.RemoteAddr)
	if err != nil {
		host = s.RemoteAddr
	}
	names, err := net.DefaultResolver.LookupAddr(ctx, host)
	if err != nil || len(names) == 0 {
		p.log.Debug("client name lookup failed, skipping", "addr", s.RemoteAddr, "error", err)
		return s.RemoteAddr
	}
	return names[0]
}

// AfterRecordingStop flushes the recording summary.
func (p *ReportPlugin) AfterRecordingStop(_ context.Context) {
	p.mu.Lock()
	count := p.recorded
	p.recorded = 0
	p.mu.Unlock()
	p.log.Info("recording stopped", "requests", count)
}
