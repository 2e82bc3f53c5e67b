package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/errors"
	"github.com/ivfcopilot/copilot/server/metrics"
	"golang.org/x/time/rate"
)

// minVisitorTTL is the shortest time a visitor is kept after its last request.
const minVisitorTTL = time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiters struct {
	visitors  map[string]*visitor
	ttl       time.Duration
	lastSweep time.Time
	mu        sync.Mutex
}

// GetOrCreate returns the limiter for ip. Visitors idle for longer than ttl
// have a full bucket again, so they are dropped and their keys returned.
func (l *rateLimiters) GetOrCreate(ip string, now time.Time, create func() *rate.Limiter) (*rate.Limiter, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var evicted []string
	if now.Sub(l.lastSweep) >= l.ttl {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) >= l.ttl {
				delete(l.visitors, key)
				evicted = append(evicted, key)
			}
		}
		l.lastSweep = now
	}

	v, exists := l.visitors[ip]
	if !exists {
		v = &visitor{limiter: create()}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	return v.limiter, evicted
}

func (l *rateLimiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// RateLimiter limits requests per client IP with a token bucket. Each
// RateLimiter owns its visitor table.
type RateLimiter struct {
	limiters *rateLimiters
	every    time.Duration
	burst    int
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing cfg.RequestsPerMinute sustained
// requests with bursts of cfg.Burst. The metrics argument may be nil.
func NewRateLimiter(cfg config.RateLimitConfig, m *metrics.Metrics) *RateLimiter {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	every := time.Minute / time.Duration(perMinute)

	ttl := every * time.Duration(burst)
	if ttl < minVisitorTTL {
		ttl = minVisitorTTL
	}

	return &RateLimiter{
		limiters: &rateLimiters{
			visitors:  make(map[string]*visitor),
			ttl:       ttl,
			lastSweep: time.Now(),
		},
		every:   every,
		burst:   burst,
		metrics: m,
		now:     time.Now,
	}
}

// Handler is the middleware function.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		now := rl.now()
		limiter, evicted := rl.limiters.GetOrCreate(ip, now, func() *rate.Limiter {
			return rate.NewLimiter(rate.Every(rl.every), rl.burst)
		})
		if rl.metrics != nil {
			for _, key := range evicted {
				rl.metrics.RateLimitHits.DeleteLabelValues(key)
			}
		}

		if !limiter.AllowN(now, 1) {
			if rl.metrics != nil {
				rl.metrics.RateLimitHits.WithLabelValues(ip).Inc()
			}
			errors.WriteError(w, errors.NewRateLimitError(GetRequestID(r.Context())))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Reset forgets every visitor.
func (rl *RateLimiter) Reset() {
	rl.limiters.mu.Lock()
	defer rl.limiters.mu.Unlock()
	rl.limiters.visitors = make(map[string]*visitor)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
