package plugin

import (
	"context"
	"log/slog"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/session"
)

// Stage names used in logs and metrics.
const (
	StageInit               = "init"
	StageOptionsLoaded      = "options_loaded"
	StageBeforeRequest      = "before_request"
	StageBeforeResponse     = "before_response"
	StageAfterResponse      = "after_response"
	StageAfterRecordingStop = "after_recording_stop"
)

// Plugin is the minimal contract every plugin satisfies.
type Plugin interface {
	Name() string
}

// Initializer runs once before any traffic is dispatched.
type Initializer interface {
	Plugin
	Init(ctx context.Context) error
}

// OptionsObserver is notified whenever a configuration snapshot is
// activated, including the initial load.
type OptionsObserver interface {
	Plugin
	OptionsLoaded(snap *config.Snapshot)
}

// RequestHook runs before the request is forwarded upstream. Mutations to
// the session (URL rewrites, synthesized responses) happen here.
type RequestHook interface {
	Plugin
	BeforeRequest(ctx context.Context, s *session.Session)
}

// ResponseHook runs before the response is emitted to the client.
type ResponseHook interface {
	Plugin
	BeforeResponse(ctx context.Context, s *session.Session)
}

// ResponseObserver runs after the response has been emitted.
type ResponseObserver interface {
	Plugin
	AfterResponse(ctx context.Context, s *session.Session)
}

// RecordingObserver is notified when recording stops, so plugins can flush
// summaries.
type RecordingObserver interface {
	Plugin
	AfterRecordingStop(ctx context.Context)
}

// Bus dispatches lifecycle stages to a fixed, ordered plugin registry.
type Bus struct {
	plugins []Plugin
	log     *slog.Logger
}

// NewBus creates a bus over the given plugins. The slice order is the
// dispatch order and never changes.
func NewBus(log *slog.Logger, plugins ...Plugin) *Bus {
	if log == nil {
		log = logging.Nop()
	}
	return &Bus{plugins: plugins, log: log}
}

// Plugins returns the registered plugins in dispatch order.
func (b *Bus) Plugins() []Plugin {
	return b.plugins
}

// safely invokes fn, recovering and logging any panic so one plugin's
// fault never aborts sibling plugins or the process.
func (b *Bus) safely(name, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("plugin fault",
				"plugin", name,
				"stage", stage,
				"panic", r,
			)
			metrics.PluginFaults.WithLabelValues(name, stage).Inc()
		}
	}()
	fn()
}

// Init dispatches the init stage. A plugin's init error is logged and does
// not prevent other plugins from initializing.
func (b *Bus) Init(ctx context.Context) {
	for _, p := range b.plugins {
		if initer, ok := p.(Initializer); ok {
			b.safely(p.Name(), StageInit, func() {
				if err := initer.Init(ctx); err != nil {
					b.log.Error("plugin init failed", "plugin", p.Name(), "error", err)
					metrics.PluginFaults.WithLabelValues(p.Name(), StageInit).Inc()
				}
			})
		}
	}
}

// OptionsLoaded dispatches a newly activated configuration snapshot.
func (b *Bus) OptionsLoaded(snap *config.Snapshot) {
	for _, p := range b.plugins {
		if obs, ok := p.(OptionsObserver); ok {
			b.safely(p.Name(), StageOptionsLoaded, func() { obs.OptionsLoaded(snap) })
		}
	}
}

// BeforeRequest dispatches the before-request stage.
func (b *Bus) BeforeRequest(ctx context.Context, s *session.Session) {
	for _, p := range b.plugins {
		if hook, ok := p.(RequestHook); ok {
			b.safely(p.Name(), StageBeforeRequest, func() { hook.BeforeRequest(ctx, s) })
		}
	}
}

// BeforeResponse dispatches the before-response stage.
func (b *Bus) BeforeResponse(ctx context.Context, s *session.Session) {
	for _, p := range b.plugins {
		if hook, ok := p.(ResponseHook); ok {
			b.safely(p.Name(), StageBeforeResponse, func() { hook.BeforeResponse(ctx, s) })
		}
	}
}

// AfterResponse dispatches the after-response stage.
func (b *Bus) AfterResponse(ctx context.Context, s *session.Session) {
	for _, p := range b.plugins {
		if obs, ok := p.(ResponseObserver); ok {
			b.safely(p.Name(), StageAfterResponse, func() { obs.AfterResponse(ctx, s) })
		}
	}
}

// AfterRecordingStop dispatches the recording-stopped stage.
func (b *Bus) AfterRecordingStop(ctx context.Context) {
	for _, p := range b.plugins {
		if obs, ok := p.(RecordingObserver); ok {
			b.safely(p.Name(), StageAfterRecordingStop, func() { obs.AfterRecordingStop(ctx) })
		}
	}
}
