package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s, err := New("get", "https://api.example.com/users?page=2")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "GET", s.Method)
	assert.Equal(t, "https://api.example.com/users?page=2", s.URL.String())
	assert.False(t, s.Handled())
}

func TestNewInvalidURL(t *testing.T) {
	_, err := New("GET", "://not-a-url")
	assert.Error(t, err)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "https://api.example.com/users", strings.NewReader(`{"name":"alice"}`))
	r.Header.Set("Authorization", "Bearer abc")
	r.RemoteAddr = "10.0.0.1:5000"

	s, err := FromRequest(r)
	require.NoError(t, err)

	assert.Equal(t, "POST", s.Method)
	assert.Equal(t, "https://api.example.com/users", s.URL.String())
	assert.Equal(t, "Bearer abc", s.Header.Get("Authorization"))
	assert.Equal(t, `{"name":"alice"}`, string(s.Body))
	assert.Equal(t, "10.0.0.1:5000", s.RemoteAddr)
}

func TestFromRequestRelativeURL(t *testing.T) {
	// Direct (non-proxied) requests reconstruct the absolute URL from the
	// Host header.
	r := httptest.NewRequest(http.MethodGet, "/users?id=1", nil)
	r.Host = "api.example.com"

	s, err := FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com/users?id=1", s.URL.String())
}

func TestSetResponseAtMostOnce(t *testing.T) {
	s, err := New("GET", "https://api.example.com/users")
	require.NoError(t, err)

	first := NewResponse(200)
	second := NewResponse(500)

	assert.True(t, s.SetResponse(first))
	assert.True(t, s.Handled())
	// A later write is rejected; the first response sticks.
	assert.False(t, s.SetResponse(second))
	assert.Same(t, first, s.Response())
}

func TestSetResponseConcurrent(t *testing.T) {
	s, err := New("GET", "https://api.example.com/users")
	require.NoError(t, err)

	wins := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			wins <- s.SetResponse(NewResponse(200))
		}()
	}

	won := 0
	for i := 0; i < 10; i++ {
		if <-wins {
			won++
		}
	}
	assert.Equal(t, 1, won)
}
