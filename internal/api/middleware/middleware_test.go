package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quackform/vibes/internal/observability"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		header string
		want   int
	}{
		{"open when no key configured", "", "", http.StatusOK},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic secret", http.StatusUnauthorized},
		{"empty key", "secret", "Bearer ", http.StatusUnauthorized},
		{"wrong key", "secret", "Bearer nope", http.StatusUnauthorized},
		{"valid key", "secret", "Bearer secret", http.StatusOK},
		{"scheme is case-insensitive", "secret", "bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/vibes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			Auth(tt.apiKey)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)

			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Run("generates an id", func(t *testing.T) {
		var seen string

		h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen, _ = r.Context().Value(observability.RequestIDKey).(string)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(requestIDHeader))
	})

	t.Run("propagates the client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(requestIDHeader, "abc-123")

		rec := httptest.NewRecorder()
		RequestID(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	})

	t.Run("replaces unsafe client ids", func(t *testing.T) {
		for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set(requestIDHeader, bad)

			rec := httptest.NewRecorder()
			RequestID(okHandler).ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			assert.NotEqual(t, bad, got)
			assert.Len(t, got, 36)
		}
	})
}

type recordingAPIMetrics struct {
	mu       sync.Mutex
	routes   []string
	classes  []string
	tooLarge int
}

func (m *recordingAPIMetrics) RecordRequest(_ context.Context, _, route, statusClass string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.routes = append(m.routes, route)
	m.classes = append(m.classes, statusClass)
}

func (m *recordingAPIMetrics) RecordRequestBodyTooLarge(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tooLarge++
}

func TestMetrics_usesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/vibes/{uid}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	metrics := &recordingAPIMetrics{}
	h := Metrics(metrics)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/vibes/alice", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, []string{"/v1/vibes/{uid}", "unmatched"}, metrics.routes)
	assert.Equal(t, []string{"4xx", "4xx"}, metrics.classes)
}

func TestMetrics_nil(t *testing.T) {
	rec := httptest.NewRecorder()
	Metrics(nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMaxBody(t *testing.T) {
	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)

			return
		}

		w.WriteHeader(http.StatusCreated)
	})

	t.Run("under the limit passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		MaxBody(16, nil)(readAll).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/v1/vibes", strings.NewReader(`{"uid":"a"}`)))

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("over the limit is 413", func(t *testing.T) {
		metrics := &recordingAPIMetrics{}
		rec := httptest.NewRecorder()
		MaxBody(8, metrics)(readAll).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/v1/vibes", strings.NewReader(strings.Repeat("x", 64))))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, 1, metrics.tooLarge)
	})

	t.Run("chunked body over the limit is 413", func(t *testing.T) {
		metrics := &recordingAPIMetrics{}
		req := httptest.NewRequest(http.MethodPost, "/v1/vibes", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
		req.ContentLength = -1

		rec := httptest.NewRecorder()
		MaxBody(8, metrics)(readAll).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		assert.Equal(t, 1, metrics.tooLarge)
	})

	t.Run("GET is not limited", func(t *testing.T) {
		rec := httptest.NewRecorder()
		MaxBody(8, nil)(okHandler).ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/v1/vibes", strings.NewReader(strings.Repeat("x", 64))))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLogging_keepsStatus(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
