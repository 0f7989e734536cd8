package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/engine"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/token"
)

func newTestAPI(t *testing.T, files map[string]string) (*API, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	store := config.NewStore(filepath.Join(dir, "options.json"), logging.Nop())
	t.Cleanup(func() { _ = store.Close() })

	e := engine.New(store, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.Start(ctx))

	issuer, err := token.NewIssuer()
	require.NoError(t, err)

	return New(e, issuer, logging.Nop()), e
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})
	w := doJSON(t, api.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRecordingToggle(t *testing.T) {
	api, e := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})
	h := api.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/recording", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"recording":false}`, w.Body.String())

	w = doJSON(t, h, http.MethodPut, "/api/recording", `{"recording": true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, e.Recording())

	w = doJSON(t, h, http.MethodPut, "/api/recording", `{"recording": false}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, e.Recording())
}

func TestRecordingBadBody(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})
	w := doJSON(t, api.Handler(), http.MethodPut, "/api/recording", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestGetConfig(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{
		"options.json": `{"urlsToWatch": ["https://api.example.com/*"]}`,
	})
	w := doJSON(t, api.Handler(), http.MethodGet, "/api/config", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["path"], "options.json")
	assert.Equal(t, float64(1), body["watchPatterns"])
}

func TestSetConfig(t *testing.T) {
	api, e := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})

	dir := t.TempDir()
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(other, []byte(`{"urlsToWatch": ["https://api.example.com/*"]}`), 0o600))

	w := doJSON(t, api.Handler(), http.MethodPut, "/api/config", `{"path": `+quoteJSON(other)+`}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, other, e.Store().Path())
	assert.Len(t, e.Store().Snapshot().Watch.Patterns(), 1)
}

func TestSetConfigMissingPath(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})
	w := doJSON(t, api.Handler(), http.MethodPut, "/api/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMockRequest(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{
		"options.json": `{
			"urlsToWatch": ["https://api.example.com/*"],
			"mocksFile": "mocks.json"
		}`,
		"mocks.json": `{
			"responses": [{"method": "GET", "url": "https://api.example.com/ping", "responseBody": "pong"}]
		}`,
	})

	w := doJSON(t, api.Handler(), http.MethodPost, "/api/mock-request",
		`{"method": "GET", "url": "https://api.example.com/ping"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["handled"])
	assert.Equal(t, float64(200), body["statusCode"])
	assert.Equal(t, "pong", body["body"])
}

func TestMockRequestUnhandled(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{
		"options.json": `{"urlsToWatch": ["https://api.example.com/*"]}`,
	})

	w := doJSON(t, api.Handler(), http.MethodPost, "/api/mock-request",
		`{"method": "GET", "url": "https://api.example.com/nothing"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["handled"])
}

func TestMockRequestValidation(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})
	w := doJSON(t, api.Handler(), http.MethodPost, "/api/mock-request", `{"method": "GET"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenEndpoint(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})

	w := doJSON(t, api.Handler(), http.MethodPost, "/api/token",
		`{"name": "svc", "audiences": ["https://api.example.com"]}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var tok token.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, "svc", tok.Subject)
	assert.Equal(t, []string{"https://api.example.com"}, tok.Audiences)
}

func TestMetricsEndpoint(t *testing.T) {
	api, _ := newTestAPI(t, map[string]string{"options.json": `{"urlsToWatch": []}`})
	w := doJSON(t, api.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "interceptd_")
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
