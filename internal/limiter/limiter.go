// Package limiter rejects requests that exceed a global or per-client rate.
package limiter

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/michaelbrown/rustplay/internal/metrics"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	globalLimiter *rate.Limiter
	ipRate        rate.Limit
	ipBurst       int

	mu           sync.Mutex
	perIPLimiter map[string]*ipLimiter
	now          func() time.Time
}

// NewRateLimiter creates a limiter. A non-positive globalRPS disables the
// global ceiling.
func NewRateLimiter(globalRPS, perIPRPS float64, perIPBurst int) *RateLimiter {
	global := rate.NewLimiter(rate.Inf, 0)
	if globalRPS > 0 {
		global = rate.NewLimiter(rate.Limit(globalRPS), max(int(globalRPS)*2, 1))
	}
	return &RateLimiter{
		globalLimiter: global,
		ipRate:        rate.Limit(perIPRPS),
		ipBurst:       perIPBurst,
		perIPLimiter:  make(map[string]*ipLimiter),
		now:           time.Now,
	}
}

func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.perIPLimiter[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rl.ipRate, rl.ipBurst)}
		rl.perIPLimiter[ip] = l
	}
	l.lastSeen = rl.now()
	return l.limiter
}

// Allow reports whether a request from ip may proceed. A request refused by
// the global ceiling does not use up the client's own allowance.
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.now()
	perIP := rl.getIPLimiter(ip).ReserveN(now, 1)
	if !perIP.OK() || perIP.DelayFrom(now) > 0 {
		perIP.CancelAt(now)
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.globalLimiter.AllowN(now, 1) {
		perIP.CancelAt(now)
		metrics.RateLimitHits.Inc()
		return false
	}
	return true
}

// Middleware answers 429 to clients over their rate. It keys on
// r.RemoteAddr, so it belongs after middleware.RealIP when the service sits
// behind a proxy.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"output":  "",
				"error":   "Too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Len is the number of clients currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.perIPLimiter)
}

// Sweep forgets clients idle for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) {
	cutoff := rl.now().Add(-idle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.perIPLimiter {
		if l.lastSeen.Before(cutoff) {
			delete(rl.perIPLimiter, ip)
		}
	}
}

// StartCleanup sweeps idle clients every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Sweep(interval)
			case <-ctx.Done():
				return
			}
		}
	}()
}
