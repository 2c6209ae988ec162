package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"trailblazer_ai/internal/metrics"
	"trailblazer_ai/internal/utils"
)

// RequestMetrics records status and latency per route pattern and logs each request.
func RequestMetrics(m metrics.Metrics) func(http.Handler) http.Handler {
	logger := utils.NewLogger("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			elapsed := time.Since(start)
			m.ObserveRequest(route, r.Method, status, elapsed)
			logger.Debug("Request served", "method", r.Method, "route", route, "status", status,
				"duration_ms", elapsed.Milliseconds(), "request_id", chimw.GetReqID(r.Context()))
		})
	}
}
