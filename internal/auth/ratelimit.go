package auth

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
)

// KeyedRateLimiter holds one token bucket per API key (or per client
// IP, for unauthenticated callers), grounded on
// r3e-network-service_layer/infrastructure/middleware.RateLimiter's
// per-key limiter map, applied here by RateLimitMiddleware to every
// /api/v1 route.
type KeyedRateLimiter struct {
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
	ratePerSecond rate.Limit
	burst         int
}

func NewKeyedRateLimiter(requestsPerSecond float64, burst int) *KeyedRateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 50
	}
	if burst <= 0 {
		burst = int(requestsPerSecond * 2)
	}
	return &KeyedRateLimiter{
		limiters:      make(map[string]*rate.Limiter),
		ratePerSecond: rate.Limit(requestsPerSecond),
		burst:         burst,
	}
}

func (k *KeyedRateLimiter) limiterFor(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.ratePerSecond, k.burst)
		k.limiters[key] = l
	}
	return l
}

// Allow reports whether the caller identified by key may proceed,
// consuming one token if so.
func (k *KeyedRateLimiter) Allow(key string) bool {
	return k.limiterFor(key).Allow()
}

// KeyFunc extracts the rate-limit bucket key from a request: the
// resolved Principal's identity if authenticated, otherwise the
// client's remote address.
func KeyFunc(r *http.Request) string {
	if p, ok := FromContext(r.Context()); ok {
		switch principal := p.(type) {
		case ServicePrincipal:
			return "key:" + principal.Name
		case UserPrincipal:
			return "user:" + principal.Username
		}
	}
	return "ip:" + r.RemoteAddr
}

// RateLimitMiddleware rejects requests exceeding the per-key budget
// with apperr.CodeOverloaded (spec.md §7's 503 for rate-limited
// callers). Must run after Middleware so KeyFunc can see the resolved
// Principal.
func RateLimitMiddleware(limiter *KeyedRateLimiter, writeErr func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(KeyFunc(r)) {
				writeErr(w, apperr.Overloaded("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
