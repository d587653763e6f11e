package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"eventmitra/backend/internal/rate"
)

// RateLimit answers 429 with Retry-After once the client key is over its
// limit. Limiter failures let the request through.
func RateLimit(limiter rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed, retryAfter, err := limiter.Allow(r.Context(), ClientKey(r))
			if err != nil {
				logger.Warn("rate_limit", "status", "limiter_error", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeJSONError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey is the authenticated user when known, otherwise the remote ip.
func ClientKey(r *http.Request) string {
	if userID, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(userID, 10)
	}
	return "ip:" + ClientIP(r)
}

// ClientIP strips the port from RemoteAddr. chimw.RealIP runs first, so
// proxy headers are already applied.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
