package scrape

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter throttles outbound requests per host
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newHostLimiter(rps float64, burst int) *hostLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a request to rawURL's host is allowed or ctx is done
func (h *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		key = u.Host
	}

	h.mu.Lock()
	limiter, ok := h.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(h.limit, h.burst)
		h.limiters[key] = limiter
	}
	h.mu.Unlock()

	return limiter.Wait(ctx)
}
