package auth

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	authMaxFailures = 10
	authWindow      = time.Minute
	authBlock       = 5 * time.Minute
	idleEviction    = 10 * time.Minute
	evictThreshold  = 1000
)

// RateLimitConfig is a token bucket per client.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimiter limits requests per client and blocks clients that keep
// failing authentication.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*client

	authMu   sync.Mutex
	failures map[string]*failureWindow
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type failureWindow struct {
	count        int
	start        time.Time
	blockedUntil time.Time
}

// NewRateLimiter creates a limiter. Non-positive values disable request
// limiting; auth failure tracking stays on.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:   cfg,
		now:      time.Now,
		clients:  make(map[string]*client),
		failures: make(map[string]*failureWindow),
	}
}

// Allow reports whether a request from key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.config.RequestsPerSecond <= 0 || rl.config.Burst <= 0 {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= evictThreshold {
			rl.evictIdle(now)
		}
		c = &client{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	for k, c := range rl.clients {
		if now.Sub(c.lastSeen) > idleEviction {
			delete(rl.clients, k)
		}
	}
}

// AuthBlocked returns how long ip stays blocked, or zero.
func (rl *RateLimiter) AuthBlocked(ip string) time.Duration {
	rl.authMu.Lock()
	defer rl.authMu.Unlock()

	f, ok := rl.failures[ip]
	if !ok || f.blockedUntil.IsZero() {
		return 0
	}
	left := f.blockedUntil.Sub(rl.now())
	if left <= 0 {
		delete(rl.failures, ip)
		return 0
	}
	return left
}

// AuthFailure records a failed attempt and reports whether ip is now blocked.
func (rl *RateLimiter) AuthFailure(ip string) bool {
	rl.authMu.Lock()
	defer rl.authMu.Unlock()

	now := rl.now()
	f, ok := rl.failures[ip]
	if !ok || now.Sub(f.start) > authWindow {
		if len(rl.failures) >= evictThreshold {
			rl.evictFailures(now)
		}
		f = &failureWindow{start: now}
		rl.failures[ip] = f
	}
	f.count++
	if f.count >= authMaxFailures {
		f.blockedUntil = now.Add(authBlock)
		return true
	}
	return false
}

// AuthSuccess forgets the failures of ip.
func (rl *RateLimiter) AuthSuccess(ip string) {
	rl.authMu.Lock()
	defer rl.authMu.Unlock()
	delete(rl.failures, ip)
}

func (rl *RateLimiter) evictFailures(now time.Time) {
	for ip, f := range rl.failures {
		expired := !f.blockedUntil.IsZero() && now.After(f.blockedUntil)
		if expired || now.Sub(f.start) > idleEviction {
			delete(rl.failures, ip)
		}
	}
}

// Middleware rejects requests over the limit with 429. keyFunc picks the
// client key; an empty key is never limited.
func (rl *RateLimiter) Middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	retry := "1"
	if rps := rl.config.RequestsPerSecond; rps > 0 && rps < 1 {
		retry = strconv.Itoa(int(math.Ceil(1 / rps)))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key := keyFunc(r); key != "" && !rl.Allow(key) {
				w.Header().Set("Retry-After", retry)
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop or the remote host.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
