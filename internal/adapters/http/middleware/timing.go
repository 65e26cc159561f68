package middleware

import (
	"net/http"
	"time"

	"rollcall/internal/adapters/http/perf"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Timing returns middleware that records request durations into the
// performance collector.
func Timing(collector *perf.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if collector != nil {
				collector.Record(perf.Entry{
					Kind:       perf.KindRequest,
					Path:       r.Method + " " + r.URL.Path,
					StatusCode: rec.status,
					DurationMs: float64(time.Since(start).Microseconds()) / 1000,
					Timestamp:  time.Now(),
				})
			}
		})
	}
}
