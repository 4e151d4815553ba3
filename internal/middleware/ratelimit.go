package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/gridiron-live/broadcast/internal/metrics"
	"github.com/gridiron-live/broadcast/pkg/response"
)

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SessionLimiter keeps one token bucket per session code.
type SessionLimiter struct {
	mu       sync.Mutex
	entries  map[string]*sessionLimiter
	rate     rate.Limit
	burst    int
	lifetime time.Duration
	now      func() time.Time
}

// NewSessionLimiter returns nil (no limiting) when rps or burst is not positive.
func NewSessionLimiter(rps, burst int) *SessionLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &SessionLimiter{
		entries:  make(map[string]*sessionLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		lifetime: 10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether another mutation for code may proceed now.
func (l *SessionLimiter) Allow(code string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[code]
	if !ok {
		entry = &sessionLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[code] = entry
	}
	entry.lastSeen = now
	allowed := entry.limiter.AllowN(now, 1)

	if len(l.entries) > 1024 {
		l.cleanup(now)
	}
	return allowed
}

func (l *SessionLimiter) cleanup(now time.Time) {
	expireBefore := now.Add(-l.lifetime)
	for code, entry := range l.entries {
		if entry.lastSeen.Before(expireBefore) {
			delete(l.entries, code)
		}
	}
}

// SessionRateLimit rejects mutations beyond the per-session budget with 429.
func SessionRateLimit(l *SessionLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.Param("code")) {
			m.IncRateLimited()
			response.TooManyRequests(c, "too many updates for this session")
			c.Abort()
			return
		}
		c.Next()
	}
}
