package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/VoiceSignal/internal/domain"
)

// RateLimiter keeps one token bucket per remote address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.Address]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[domain.Address]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (rl *RateLimiter) Allow(addr domain.Address) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[addr] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *RateLimiter) Forget(addr domain.Address) {
	rl.mu.Lock()
	delete(rl.limiters, addr)
	rl.mu.Unlock()
}
