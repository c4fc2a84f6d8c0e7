package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs method, URI, status and duration of every request.
// Server errors are logged at error level, client errors at warn.
func LoggingMiddleware(l zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)

		ev := l.Info()
		switch {
		case lrw.statusCode >= 500:
			ev = l.Error()
		case lrw.statusCode >= 400:
			ev = l.Warn()
		}
		ev.Str("method", r.Method).
			Str("uri", r.RequestURI).
			Int("status", lrw.statusCode).
			Float64("ms", float64(time.Since(start).Nanoseconds())/1e6).
			Msg("http request")
	})
}
