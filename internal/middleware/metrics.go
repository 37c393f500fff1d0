package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder is the part of metrics.Metrics the Metrics middleware uses.
type HTTPRecorder interface {
	IncInFlight()
	DecInFlight()
	RecordHTTPRequest(method, route, status string, d time.Duration)
}

// unmatchedRoute labels requests chi could not route, so 404 scans do not
// create a label per probed path.
const unmatchedRoute = "unmatched"

// Metrics records in-flight requests, request counts and latency. Requests
// are labelled with the chi route pattern ("/api/teams/join"), never the
// raw path.
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec.IncInFlight()
			defer rec.DecInFlight()

			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			rec.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}
