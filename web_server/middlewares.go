package web_server

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// LoggingResponseWriter wraps an http.ResponseWriter and remembers the status
// code written to it so that the request log can include it.
type LoggingResponseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader records the code before handing it to the wrapped
// http.ResponseWriter.
func (rw *LoggingResponseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs the incoming HTTP request, status, method, path and
// duration to the given zap.Logger.
func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrappedWriter := &LoggingResponseWriter{
				ResponseWriter: w,
			}
			next.ServeHTTP(wrappedWriter, r)
			logger.Debug(r.URL.String(),
				zap.Int("status", wrappedWriter.status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.EscapedPath()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// noCacheMiddleware sets response headers that keep clients from caching, as
// calendar data served from stale caches would show outdated conflicts.
func noCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=0, no-cache, must-revalidate, proxy-revalidate")
		next.ServeHTTP(w, r)
	})
}
