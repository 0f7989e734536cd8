package mocks

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/session"
	"github.com/getmockd/interceptd/pkg/util"
)

// HeaderRequestID is the correlation header set on every synthesized
// response, carrying the session ID.
const HeaderRequestID = "Request-Id"

// Responder synthesizes HTTP responses from mock definitions. File-reference
// bodies are resolved relative to baseDir (the configuration file's
// directory).
type Responder struct {
	baseDir string
	log     *slog.Logger
}

// NewResponder creates a responder resolving file references against baseDir.
func NewResponder(baseDir string) *Responder {
	return &Responder{baseDir: baseDir, log: logging.Nop()}
}

// SetLogger sets the logger.
func (r *Responder) SetLogger(log *slog.Logger) {
	if log != nil {
		r.log = log
	}
}

// Build synthesizes the response for a matched definition.
func (r *Responder) Build(d *Definition, s *session.Session) *session.Response {
	resp := session.NewResponse(d.StatusCode())
	resp.Header.Set(HeaderRequestID, s.ID)
	resp.Header.Set("Content-Type", "application/json")
	for name, value := range d.ResponseHeaders {
		resp.Header.Set(name, value)
	}
	resp.Body = r.body(d)

	metrics.MockHits.WithLabelValues(d.URL).Inc()
	r.log.Info("mock response served",
		"method", d.Method,
		"pattern", d.URL,
		"status", resp.StatusCode,
	)
	return resp
}

// body materializes the definition's body. A missing referenced file is
// logged and degrades to serving the raw reference string; the request is
// never failed over it.
func (r *Responder) body(d *Definition) []byte {
	b := d.ResponseBody
	switch b.Kind() {
	case BodyEmpty:
		return nil
	case BodyLiteral:
		return []byte(b.Value())
	}

	rel, safe := util.SafeFilePath(b.Value())
	if !safe {
		r.log.Error("unsafe path in mock body file reference", "file", b.Value())
		return []byte(b.Raw())
	}
	path := rel
	if r.baseDir != "" {
		path = filepath.Join(r.baseDir, rel)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.log.Error("failed to read mock body file", "file", path, "error", err)
		return []byte(b.Raw())
	}
	return data
}

// Blocked synthesizes the 502 returned for unmocked requests when blocking
// is enabled.
func (r *Responder) Blocked(s *session.Session) *session.Response {
	resp := session.NewResponse(http.StatusBadGateway)
	resp.Header.Set(HeaderRequestID, s.ID)
	resp.Header.Set("Content-Type", "application/json")

	body := map[string]string{
		"error":   "no_mock_matched",
		"message": "No mock found for " + strings.ToUpper(s.Method) + " " + s.URL.String(),
		"method":  strings.ToUpper(s.Method),
		"url":     s.URL.String(),
	}
	data, err := json.Marshal(body)
	if err != nil {
		data = []byte(`{"error":"no_mock_matched"}`)
	}
	resp.Body = data

	r.log.Warn("blocked unmocked request", "method", s.Method, "url", s.URL.String())
	return resp
}
