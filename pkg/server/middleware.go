package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zero5yt/StreamixBot2.0/pkg/logging"
	"github.com/zero5yt/StreamixBot2.0/pkg/metrics"
)

// requestLogger logs and measures every request. Downloads are logged at
// debug since players issue a steady stream of range requests. The deferred
// record also runs when a stream is aborted mid-body.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			duration := time.Since(start)
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if route != "/metrics" {
				metrics.RecordHTTPRequest(r.Method, route, status, duration)
			}

			logger := logging.GetLogger()
			level := zerolog.InfoLevel
			if strings.HasPrefix(r.URL.Path, "/dl/") {
				level = zerolog.DebugLevel
			}
			logger.WithLevel(level).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("range", r.Header.Get("Range")).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", duration).
				Str("remote_addr", r.RemoteAddr).
				Msg("Request")
		}()

		next.ServeHTTP(ww, r)
	})
}
