package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/time/rate"
)

// newTestClient points a geocoder at srv with no rate limiting.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *geocoder {
	t.Helper()
	g := NewClient("test-key", append([]Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)...).(*geocoder)
	g.limiter = rate.NewLimiter(rate.Inf, 1)
	return g
}

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string]*Result
	sets int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]*Result)}
}

func (m *memCache) Get(_ context.Context, key string) (*Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[key]
	return r, ok
}

func (m *memCache) Set(_ context.Context, key string, r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = r
	m.sets++
}

// countingHandler wraps h and counts requests.
func countingHandler(n *int, h http.HandlerFunc) http.HandlerFunc {
	var mu sync.Mutex
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*n++
		mu.Unlock()
		h(w, r)
	}
}
