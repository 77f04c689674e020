package middleware

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport"
	"github.com/frahmantamala/payment-gate/pkg/rate"
)

// RateLimit throttles per authenticated user, falling back to the client
// address for anonymous calls.
func RateLimit(limiter rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := internal.UserIDFromContext(r.Context())
			if key == "" {
				key = clientIP(r)
			}

			allowed, err := limiter.Allow(key)
			if err != nil {
				// fail open
				logger.WarnContext(r.Context(), "rate limiter failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.WarnContext(r.Context(), "rate limit exceeded", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				base.HandleError(w, internal.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
