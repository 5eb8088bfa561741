package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bubbleup/bubbleup/pkg/observability"
)

// Metrics records request count and duration per route. The route template
// (not the raw path) is used as the label to keep cardinality bounded.
func Metrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if template, err := route.GetPathTemplate(); err == nil {
					path = template
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, http.StatusText(recorder.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
