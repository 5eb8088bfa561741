package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bubbleup/bubbleup/pkg/observability"
)

// RequestIDHeader carries the request ID on responses and may supply one
// on inbound requests from trusted proxies.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an ID, stores it on the context and echoes
// it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := observability.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
