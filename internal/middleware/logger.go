package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"qa-gateway/internal/metrics"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderCacheHit  = "X-Cache-Hit"
)

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger logs one line per request and records its duration. Requests
// without an X-Request-ID get a fresh one, echoed back in the response.
func Logger(log logrus.FieldLogger, m metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = uuid.New().String()
				r.Header.Set(HeaderRequestID, reqID)
			}
			w.Header().Set(HeaderRequestID, reqID)

			rw := &responseWriter{w, http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			cacheHit := rw.Header().Get(HeaderCacheHit)
			if cacheHit == "" {
				cacheHit = "false"
			}

			route := r.URL.Path
			if rw.statusCode == http.StatusNotFound {
				route = "unmatched"
			}
			if m != nil {
				m.ObserveHTTPRequest(route, r.Method, strconv.Itoa(rw.statusCode), duration.Seconds())
			}

			log.WithFields(logrus.Fields{
				"request_id": reqID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rw.statusCode,
				"latency":    duration,
				"cache_hit":  cacheHit,
			}).Info("request")
		})
	}
}
