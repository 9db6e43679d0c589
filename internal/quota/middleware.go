package quota

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/pkg/protocol"
)

// KeyFunc picks the bucket a request is charged to. Returning "" falls back
// to the remote address.
type KeyFunc func(r *http.Request) string

// RateLimitMiddleware returns middleware that enforces per-client rate limits.
func RateLimitMiddleware(limiter *RateLimiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !limiter.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if keyFn != nil {
				key = keyFn(r)
			}
			if key == "" {
				key = remoteHost(r)
			}

			if !limiter.Allow(key) {
				metrics.RecordRateLimitHit()
				w.Header().Set("Retry-After", strconv.Itoa(limiter.RetryAfter(key)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(protocol.ErrorResponse{
					Error: "rate limit exceeded",
					Code:  http.StatusTooManyRequests,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return "ip:" + host
}
