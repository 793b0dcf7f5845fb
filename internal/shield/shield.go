// Package shield holds the HTTP middleware in front of the domprobe routes:
// API security headers and a per-client fixed-window rate limit.
package shield

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/domprobe/kit"
)

// SecurityHeaders sets the headers every JSON API response carries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type bucket struct {
	count   int
	resetAt time.Time
}

// RateLimiter allows each client IP at most Max requests per Window on the
// paths it guards.
type RateLimiter struct {
	max     int
	window  time.Duration
	exclude []string
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a limiter. max <= 0 disables limiting. Paths with
// one of the exclude prefixes are never limited.
func NewRateLimiter(max int, window time.Duration, logger *slog.Logger, exclude ...string) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		max:     max,
		window:  window,
		exclude: exclude,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	if rl.max <= 0 {
		return true
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[ip]
	if !ok || now.After(b.resetAt) {
		rl.buckets[ip] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	b.count++
	return b.count <= rl.max
}

// GC drops expired buckets.
func (rl *RateLimiter) GC() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		if now.After(b.resetAt) {
			delete(rl.buckets, ip)
		}
	}
}

// StartGC drops expired buckets every window until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}) {
	tick := time.NewTicker(rl.window)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.GC()
			}
		}
	}()
}

// Middleware answers 429 with a JSON error once a client is over its limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		ip := ClientIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}
		rl.logger.Warn("shield: rate limited", "ip", ip, "path", r.URL.Path)
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		kit.WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	})
}

// ClientIP returns the host part of RemoteAddr. Run chi's RealIP middleware
// first when a proxy sits in front.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
