package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"trailblazer_ai/internal/metrics"
	"trailblazer_ai/internal/ratelimit"
	"trailblazer_ai/internal/utils"
)

// RateLimitMiddleware limits requests per user. It must run after UserJWTMiddleware.
// Limiter failures let the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, limit int, m metrics.Metrics) func(http.Handler) http.Handler {
	logger := utils.NewLogger("ratelimit")
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == "" {
				userID = AnonymousUser
			}

			// keys hold a digest so raw user ids never reach Redis
			allowed, remaining, resetAt, err := limiter.AllowWithDetails(r.Context(), "user:"+utils.HashString(userID), limit)
			if err != nil {
				logger.Error("Rate limit check failed, allowing request", "user_id", userID, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if remaining >= 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			}
			if !allowed {
				m.ObserveRateLimited("user")
				retry := int(math.Ceil(time.Until(resetAt).Seconds()))
				if retry < 1 {
					retry = 1
				}
				utils.RespondWithTypedError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests", retry)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
