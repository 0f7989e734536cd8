package engine

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/session"
)

// snapshotKey carries the per-request configuration snapshot through the
// context, so every plugin in one request sees the same rule set even if a
// reload lands mid-flight.
type snapshotKey struct{}

func withSnapshot(ctx context.Context, snap *config.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// snapshotFrom returns the request's pinned snapshot.
func snapshotFrom(ctx context.Context) *config.Snapshot {
	snap, _ := ctx.Value(snapshotKey{}).(*config.Snapshot)
	return snap
}

// Engine orchestrates the plugin pipeline for intercepted traffic.
type Engine struct {
	bus   *plugin.Bus
	store *config.Store
	log   *slog.Logger

	recording atomic.Bool
}

// New creates an engine with the default plugin pipeline over the given
// configuration store.
func New(store *config.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}

	e := &Engine{store: store, log: log}

	plugins := []plugin.Plugin{
		NewRewritePlugin(logging.Component(log, "rewrite")),
		NewLatencyPlugin(logging.Component(log, "latency")),
		NewThrottlePlugin(logging.Component(log, "throttle")),
		NewMockPlugin(logging.Component(log, "mocks")),
		NewReportPlugin(logging.Component(log, "report"), e),
	}
	e.bus = plugin.NewBus(logging.Component(log, "bus"), plugins...)

	store.OnReload(e.bus.OptionsLoaded)
	return e
}

// NewWithPlugins creates an engine over a caller-supplied pipeline.
func NewWithPlugins(store *config.Store, log *slog.Logger, plugins ...plugin.Plugin) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	e := &Engine{store: store, log: log}
	e.bus = plugin.NewBus(logging.Component(log, "bus"), plugins...)
	store.OnReload(e.bus.OptionsLoaded)
	return e
}

// Start initializes plugins, delivers the initial configuration, and starts
// the configuration watcher.
func (e *Engine) Start(ctx context.Context) error {
	e.bus.Init(ctx)
	e.bus.OptionsLoaded(e.store.Snapshot())
	e.recording.Store(e.store.Snapshot().Options.Recording)
	return e.store.Watch(ctx)
}

// Store returns the engine's configuration store.
func (e *Engine) Store() *config.Store {
	return e.store
}

// Recording reports whether traffic recording is on.
func (e *Engine) Recording() bool {
	return e.recording.Load()
}

// SetRecording toggles recording. Turning recording off dispatches the
// after-recording-stop stage so plugins can flush summaries.
func (e *Engine) SetRecording(ctx context.Context, on bool) {
	was := e.recording.Swap(on)
	if was && !on {
		e.bus.AfterRecordingStop(ctx)
	}
	e.log.Info("recording toggled", "recording", on)
}

// OnRequest is called by the interception engine for each intercepted
// request, before it is forwarded upstream. It returns the synthesized
// response, or nil when the request should proceed to the real backend.
func (e *Engine) OnRequest(ctx context.Context, s *session.Session) *session.Response {
	snap := e.store.Snapshot()
	ctx = withSnapshot(ctx, snap)

	watched := snap.Watch.Matches(s.URL.String())
	metrics.RequestsTotal.WithLabelValues(strconv.FormatBool(watched)).Inc()

	e.bus.BeforeRequest(ctx, s)
	return s.Response()
}

// OnResponse is called once a response for the session exists, whether
// synthesized here or produced by the upstream service.
func (e *Engine) OnResponse(ctx context.Context, s *session.Session) {
	ctx = withSnapshot(ctx, e.store.Snapshot())
	e.bus.BeforeResponse(ctx, s)
	e.bus.AfterResponse(ctx, s)
}

// Process runs a session through the full request and response pipeline.
// Used for synthetic diagnostic requests from the control surface.
func (e *Engine) Process(ctx context.Context, s *session.Session) *session.Response {
	resp := e.OnRequest(ctx, s)
	e.OnResponse(ctx, s)
	return resp
}
