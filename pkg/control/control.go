// Package control exposes the management surface of the proxy: recording
// toggles, configuration file management, synthetic diagnostic requests,
// token issuance, and metrics.
package control

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/session"
	"github.com/getmockd/interceptd/pkg/token"
)

// MaxBodySize caps control request bodies (1MB).
const MaxBodySize = 1 << 20

// API is the management surface over a running engine.
type API struct {
	engine *engine.Engine
	issuer *token.Issuer
	log    *slog.Logger
}

// New creates the control API.
func New(e *engine.Engine, issuer *token.Issuer, log *slog.Logger) *API {
	if log == nil {
		log = logging.Nop()
	}
	return &API{engine: e, issuer: issuer, log: log}
}

// Handler returns the control surface HTTP handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /api/recording", a.handleGetRecording)
	mux.HandleFunc("PUT /api/recording", a.handleSetRecording)
	mux.HandleFunc("GET /api/config", a.handleGetConfig)
	mux.HandleFunc("PUT /api/config", a.handleSetConfig)
	mux.HandleFunc("POST /api/config/reload", a.handleReload)
	mux.HandleFunc("POST /api/mock-request", a.handleMockRequest)
	mux.HandleFunc("POST /api/token", a.handleToken)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleGetRecording(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"recording": a.engine.Recording()})
}

func (a *API) handleSetRecording(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recording bool `json:"recording"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	a.engine.SetRecording(r.Context(), req.Recording)
	writeJSON(w, http.StatusOK, map[string]bool{"recording": req.Recording})
}

func (a *API) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	snap := a.engine.Store().Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":          a.engine.Store().Path(),
		"loadedAt":      snap.LoadedAt,
		"watchPatterns": len(snap.Watch.Patterns()),
		"mocks":         snap.Mocks.Len(),
		"rewrites":      snap.Rewrites.Len(),
	})
}

func (a *API) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}
	a.engine.Store().SetPath(req.Path)
	a.log.Info("configuration file replaced", "path", req.Path)
	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path})
}

func (a *API) handleReload(w http.ResponseWriter, _ *http.Request) {
	a.engine.Store().Reload()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// mockRequest is a synthetic request submitted for diagnostics.
type mockRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// handleMockRequest runs a synthetic request through the full plugin
// pipeline and reports what the proxy would have done.
func (a *API) handleMockRequest(w http.ResponseWriter, r *http.Request) {
	var req mockRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Method == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "method and url are required")
		return
	}

	s, err := session.New(req.Method, req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	for name, value := range req.Headers {
		s.Header.Set(name, value)
	}
	s.Body = []byte(req.Body)

	resp := a.engine.Process(r.Context(), s)
	if resp == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"handled": false,
			"url":     s.URL.String(),
		})
		return
	}

	headers := make(map[string]string, len(resp.Header))
	for name := range resp.Header {
		headers[name] = resp.Header.Get(name)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"handled":    true,
		"url":        s.URL.String(),
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       string(resp.Body),
	})
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if a.issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "token_issuer_unavailable", "token issuer not configured")
		return
	}
	var opts token.Options
	if err := decodeBody(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tok, err := a.issuer.Issue(opts)
	if err != nil {
		a.log.Error("token issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "token_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, MaxBodySize))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("request body is required")
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
