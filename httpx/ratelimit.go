package httpx

import (
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiters lazily creates a token-bucket limiter per host, ahead of the
// circuit breaker in the call chain. Grounded on wessley-mvp's
// pkg/resilience rate-limiting use of golang.org/x/time/rate, a capability
// the teacher framework's own resilience package lacks.
type HostLimiters struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewHostLimiters(rps float64, burst int) *HostLimiters {
	return &HostLimiters{rps: rate.Limit(rps), burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (h *HostLimiters) For(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = l
	}
	return l
}
