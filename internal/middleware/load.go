package middleware

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
)

// LoadTracker counts requests in flight and served, for the status endpoint.
type LoadTracker struct {
	inFlight atomic.Int64
	served   atomic.Int64
}

// NewLoadTracker builds an empty tracker.
func NewLoadTracker() *LoadTracker {
	return &LoadTracker{}
}

// Middleware wraps every request in the counters.
func (l *LoadTracker) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		l.inFlight.Add(1)
		defer func() {
			l.inFlight.Add(-1)
			l.served.Add(1)
		}()
		return c.Next()
	}
}

// Snapshot reports the current counters.
func (l *LoadTracker) Snapshot() (inFlight, served int64) {
	return l.inFlight.Load(), l.served.Load()
}
