package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/quackform/vibes/internal/observability"
)

// Metrics returns middleware that records HTTP request count and duration.
// When metrics is nil, recording is skipped. Put Metrics outside the mux so the matched pattern
// is available after ServeHTTP returns.
func Metrics(metrics observability.APIMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Context(), r.Method, routeOf(r), observability.StatusClass(rw.statusCode), time.Since(start))
		})
	}
}

// routeOf returns the mux pattern without the method (e.g. "/v1/vibes/{uid}"), which keeps uids out
// of metric labels. Unmatched requests are reported as "unmatched".
func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}

	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}

	return r.Pattern
}
