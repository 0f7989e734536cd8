package session

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Response is a synthesized HTTP response to be returned to the client
// instead of (or on behalf of) the upstream service.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse creates a response with an initialized header map.
func NewResponse(statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
	}
}

// Session is the mutable per-request context passed through the event bus.
// Method, URL, Header and Body may be mutated by plugins before the request
// is forwarded upstream. The response slot accepts a single write.
type Session struct {
	// ID is the correlation identifier for this request. It is echoed in
	// synthesized responses so clients can tie a response back to a log line.
	ID string

	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte

	RemoteAddr string
	StartedAt  time.Time

	mu   sync.Mutex
	resp *Response
}

// New creates a session for the given method and absolute URL.
func New(method, rawURL string) (*Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	return &Session{
		ID:        uuid.NewString(),
		Method:    strings.ToUpper(method),
		URL:       u,
		Header:    make(http.Header),
		StartedAt: time.Now(),
	}, nil
}

// FromRequest builds a session from an incoming HTTP request, consuming the
// request body.
func FromRequest(r *http.Request) (*Session, error) {
	s, err := New(r.Method, requestURL(r))
	if err != nil {
		return nil, err
	}
	s.Header = r.Header.Clone()
	s.RemoteAddr = r.RemoteAddr
	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		s.Body = body
	}
	return s, nil
}

// requestURL reconstructs the absolute URL of a request. Proxied requests
// carry an absolute RequestURI already; direct requests need scheme and host
// filled in from the connection.
func requestURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// SetResponse stores the response for this session. It returns true if the
// response slot was empty and the write took effect, false if an earlier
// plugin already produced a response.
func (s *Session) SetResponse(resp *Response) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resp != nil {
		return false
	}
	s.resp = resp
	return true
}

// Response returns the response produced for this session, or nil.
func (s *Session) Response() *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp
}

// Handled reports whether a response has already been produced.
func (s *Session) Handled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp != nil
}

// SetURL replaces the request URL. Used by the rewrite engine.
func (s *Session) SetURL(u *url.URL) {
	s.URL = u
}
