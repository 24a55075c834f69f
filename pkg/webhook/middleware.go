package webhook

import (
	"log/slog"
	"net/http"
	"time"
)

// requestLogger emits one structured line per request once the response is
// written.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(lw, r)
			logger.InfoContext(r.Context(), "request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", lw.statusCode,
				"size", lw.size,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", r.RemoteAddr,
				"delivery", r.Header.Get("X-GitHub-Delivery"))
		})
	}
}

// loggingResponseWriter captures the status code and body size written by
// the wrapped handler.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := lw.ResponseWriter.Write(b)
	lw.size += size
	return size, err
}

func (lw *loggingResponseWriter) WriteHeader(statusCode int) {
	lw.statusCode = statusCode
	lw.ResponseWriter.WriteHeader(statusCode)
}
