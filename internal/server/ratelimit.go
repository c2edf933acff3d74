package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiter keeps a token bucket per client id.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newClientLimiter(perSec float64, burst int) *clientLimiter {
	if perSec <= 0 {
		perSec = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &clientLimiter{
		limiters: map[string]*rate.Limiter{},
		rate:     rate.Limit(perSec),
		burst:    burst,
	}
}

func (c *clientLimiter) allow(clientID string) bool {
	c.mu.Lock()
	l, ok := c.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(c.rate, c.burst)
		c.limiters[clientID] = l
	}
	c.mu.Unlock()
	return l.Allow()
}
