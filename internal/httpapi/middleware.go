// Middleware chain for the Watchy HTTP facade, following the teacher's
// gorilla/mux mux.MiddlewareFunc style (infrastructure/middleware):
// recovery -> logging -> metrics -> API key -> rate limit -> CORS.
package httpapi

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"

	"github.com/builders-garden/watchy/internal/logging"
	"github.com/builders-garden/watchy/internal/obsmetrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// RecoveryMiddleware converts a panicking handler into a 500 response
// and logs the stack trace, mirroring the teacher's RecoveryMiddleware.
func RecoveryMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithContext(r.Context()).WithField("panic", fmt.Sprintf("%v", err)).
						WithField("stack", string(debug.Stack())).Error("panic recovered")
					writeError(w, fmt.Errorf("internal error"), http.StatusInternalServerError, "INTERNAL_ERROR")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware assigns/propagates a trace ID and logs request
// completion with status and duration.
func LoggingMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			log.LogRequest(ctx, r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

// MetricsMiddleware records request count, latency, and in-flight gauge.
func MetricsMiddleware(m *obsmetrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			route := mux.CurrentRoute(r)
			path := r.URL.Path
			if route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			status := fmt.Sprintf("%d", wrapped.statusCode)
			m.HTTPRequestsTotal.WithLabelValues("watchy", r.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues("watchy", r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// APIKeyMiddleware rejects requests missing the configured API key,
// when one is configured. An empty apiKey disables the check entirely,
// matching the teacher's permissive-by-default local dev posture.
func APIKeyMiddleware(apiKey string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("X-API-Key") != apiKey {
				writeError(w, fmt.Errorf("missing or invalid api key"), http.StatusUnauthorized, "invalid_request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware applies a permissive, configuration-free CORS policy
// suitable for a read-mostly audit API.
func CORSMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Trace-ID")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
