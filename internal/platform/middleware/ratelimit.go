package middleware

import (
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"flowgate/internal/access"
	"flowgate/internal/platform/config"
	"flowgate/internal/platform/metrics"
	dErrors "flowgate/pkg/domain-errors"
	"flowgate/pkg/platform/httputil"
	"flowgate/pkg/requestcontext"
)

// ClientLimiter holds one token bucket per REST client, or per IP for
// unauthenticated callers.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewClientLimiter(cfg config.RateLimitConfig) *ClientLimiter {
	return &ClientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
	}
}

func (l *ClientLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Allow consumes one token for key.
func (l *ClientLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// RateLimit rejects callers that exceed their bucket with 429. It must run
// after RequireClient to key by client.
func RateLimit(l *ClientLimiter, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ip:" + requestcontext.ClientIP(ctx)
			if id := access.IdentityFrom(ctx); id != nil {
				key = "client:" + id.ClientID
			}
			if !l.Allow(key) {
				if m != nil {
					m.RateLimited.Inc()
				}
				logger.WarnContext(ctx, "rate limited",
					"request_id", GetRequestID(ctx),
					"key", key,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
