package transport

import (
	"sync"

	"golang.org/x/time/rate"
)

// ratePerMinute is the inbound message budget per source IP.
const ratePerMinute = 30

// IPRateLimiter hands out a token-bucket limiter per source IP, so one noisy
// or hostile peer can't starve the inbound queue for everyone else.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewIPRateLimiter returns a limiter allowing ratePerMinute requests per
// minute per IP, with a burst of the same size.
func NewIPRateLimiter() *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute)
		l.limiters[ip] = limiter
	}
	return limiter
}

// Allow reports whether ip may send another message right now, consuming a
// token if so.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.limiterFor(ip).Allow()
}
