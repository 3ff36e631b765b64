package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	authcore "github.com/munyaradzichiondegwa/vision-2030-platform"
)

// KeyFunc picks the throttle subject of a request. An empty key skips
// throttling.
type KeyFunc func(*http.Request) string

// ByClientIP keys on the IP recorded by Origin.
func ByClientIP(r *http.Request) string {
	if ip := authcore.ClientIPFromContext(r.Context()); ip != "" {
		return "ip:" + ip
	}
	return ""
}

// ByAccount keys guarded requests on the account and falls back to the IP.
func ByAccount(r *http.Request) string {
	if c, ok := ClaimsFromContext(r.Context()); ok {
		return "account:" + c.AccountID
	}
	return ByClientIP(r)
}

// RateLimit counts each request against the engine's api class. Denied
// requests get 429 with Retry-After; an unreachable counter store fails
// closed with 503.
func RateLimit(engine *authcore.Engine, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByClientIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := key(r)
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, err := engine.AttemptAPI(r.Context(), subject)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var rl *authcore.RateLimitError
			if errors.As(err, &rl) {
				SetRetryAfter(w, rl, time.Now())
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		})
	}
}

// SetRetryAfter writes the Retry-After header for rl in whole seconds.
func SetRetryAfter(w http.ResponseWriter, rl *authcore.RateLimitError, now time.Time) {
	secs := int64(rl.RetryAfter(now) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
}
