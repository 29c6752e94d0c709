// Package testutil provides testing utilities for snapfetch.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock origin response.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
	// Drop closes the connection without writing a response.
	Drop bool
}

// MockOrigin is a configurable mock image origin for testing.
type MockOrigin struct {
	server *httptest.Server

	mu        sync.Mutex
	sequences map[string][]MockResponse
	served    map[string]int
	requests  []string
	lastUA    string
}

// NewMockOrigin creates a new mock origin server. Paths without a configured
// response answer 404.
func NewMockOrigin() *MockOrigin {
	m := &MockOrigin{
		sequences: make(map[string][]MockResponse),
		served:    make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears request tracking. Configured responses are kept, and response
// sequences start over.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.served = make(map[string]int)
	m.requests = nil
	m.lastUA = ""
}

// SetResponse configures the response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence configures responses served in order for a path. The last
// response repeats once the sequence is used up.
func (m *MockOrigin) SetSequence(path string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[path] = resps
}

// FailThenServe makes path answer status for the first failures requests and
// serve body afterwards.
func (m *MockOrigin) FailThenServe(path string, failures, status int, body []byte) {
	seq := make([]MockResponse, 0, failures+1)
	for i := 0; i < failures; i++ {
		seq = append(seq, MockResponse{StatusCode: status})
	}
	seq = append(seq, NewImageResponse(body))
	m.SetSequence(path, seq...)
}

// RequestCount returns the total number of requests served.
func (m *MockOrigin) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// PathCount returns the number of requests served for path.
func (m *MockOrigin) PathCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.served[path]
}

// Requests returns the requested paths in arrival order.
func (m *MockOrigin) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockOrigin) LastUserAgent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUA
}

func (m *MockOrigin) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	n := m.served[r.URL.Path]
	m.served[r.URL.Path] = n + 1
	m.requests = append(m.requests, r.URL.Path)
	m.lastUA = r.Header.Get("User-Agent")
	seq, ok := m.sequences[r.URL.Path]
	m.mu.Unlock()

	if !ok || len(seq) == 0 {
		http.NotFound(w, r)
		return
	}

	if n >= len(seq) {
		n = len(seq) - 1
	}
	resp := seq[n]

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if resp.Drop {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

// NewImageResponse creates a 200 OK response carrying body as an image.
func NewImageResponse(body []byte) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "image/png",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte("internal server error"),
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       []byte("not found"),
	}
}

// NewSlowResponse creates a 200 OK response delayed by d.
func NewSlowResponse(body []byte, d time.Duration) MockResponse {
	resp := NewImageResponse(body)
	resp.Delay = d
	return resp
}

// NewDroppedResponse creates a response that closes the connection.
func NewDroppedResponse() MockResponse {
	return MockResponse{Drop: true}
}
