package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/platinummonkey/hearth/pkg/httputil"
	"github.com/platinummonkey/hearth/pkg/observability"
)

// RateLimitConfig holds rate limiting configuration for one endpoint group
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *observability.Logger
}

// RateLimit creates an IP-based rate limiter. A non-positive request count
// disables limiting.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.WithFields(map[string]interface{}{
					"ip":     r.RemoteAddr,
					"path":   r.URL.Path,
					"method": r.Method,
				}).Warn("rate limit exceeded")
			}
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
		}),
	)
}
