// Package testutil provides testing utilities for the harvester.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock origin response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable stand-in for the problem site.
// Unknown paths answer 404.
type MockOrigin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	counts   map[string]int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockOrigin creates a new mock origin server.
func NewMockOrigin() *MockOrigin {
	mock := &MockOrigin{
		handlers: make(map[string]http.HandlerFunc),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.counts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// ProblemURLPrefix returns the base URL problems are served under, e.g. "http://127.0.0.1:1234/BP".
func (m *MockOrigin) ProblemURLPrefix() string {
	return m.server.URL + "/BP"
}

// Close shuts down the mock server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOrigin) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.counts = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOrigin) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockOrigin) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence answers successive requests to path with the given responses.
// The last response repeats once the sequence is used up.
func (m *MockOrigin) SetSequence(path string, seq ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := seq[min(next, len(seq)-1)]
		next++
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOrigin) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// LastHeader returns the headers of the most recent request.
func (m *MockOrigin) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// PathCount returns how many requests hit path.
func (m *MockOrigin) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// CountPrefix returns how many requests hit paths starting with prefix.
func (m *MockOrigin) CountPrefix(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for p, c := range m.counts {
		if strings.HasPrefix(p, prefix) {
			n += c
		}
	}
	return n
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// ProblemPath returns the page path of problem id.
func ProblemPath(id int) string {
	return fmt.Sprintf("/BP%d", id)
}

// ImagePath returns the path of the n-th (1-based) example image of problem id.
func ImagePath(id, n int) string {
	return fmt.Sprintf("/examples/BP%d/BP%d_%d.png", id, id, n)
}

// ImageBody is the deterministic content served for an image path.
func ImageBody(path string) string {
	return "\x89PNG\r\n\x1a\n" + path
}

// ServeProblem serves a problem page with images example images and the given
// solution, plus every referenced image.
func (m *MockOrigin) ServeProblem(id, images int, solution string) {
	paths := make([]string, images)
	for i := range paths {
		paths[i] = ImagePath(id, i+1)
		m.SetResponse(paths[i], NewImageResponse(paths[i]))
	}
	m.SetResponse(ProblemPath(id), NewPageResponse(ProblemPage(id, paths, solution)))
}

// ProblemPage renders a page shaped like the origin's problem pages: a table
// row holding the problem link and its solution, the example images, and some
// unrelated images that must not be picked up.
func ProblemPage(id int, imagePaths []string, solution string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>Bongard Problem</title></head><body>\n")
	b.WriteString(`<img src="/static/logo.png" alt="logo">` + "\n")
	b.WriteString("<table>\n")
	fmt.Fprintf(&b, "<tr><td><a href=\"/BP%d\">BP%d</a></td><td>\n  <a href=\"/search?q=BP%d\">search</a></td><td>\n  %s\n</td></tr>\n", id, id, id, solution)
	b.WriteString("</table>\n<div class=\"examples\">\n")
	for _, p := range imagePaths {
		fmt.Fprintf(&b, "<a href=\"%s\"><img src=\"%s\"></a>\n", p, p)
	}
	b.WriteString("</div>\n<img src=\"/static/footer.gif\">\n</body></html>\n")
	return b.String()
}

// NewPageResponse creates a 200 HTML response.
func NewPageResponse(html string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       html,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewImageResponse creates a 200 PNG response for path.
func NewImageResponse(path string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       ImageBody(path),
		Headers: map[string]string{
			"Content-Type": "image/png",
		},
	}
}

// NewStatusResponse creates an empty response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       http.StatusText(status),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := NewStatusResponse(http.StatusTooManyRequests)
	if retryAfter != "" {
		resp.Headers = map[string]string{"Retry-After": retryAfter}
	}
	return resp
}
