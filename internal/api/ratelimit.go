package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-IP HTTP limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration // Stale limiters are dropped after twice this
}

// DefaultRateLimitConfig covers the REST endpoints; WebSocket traffic is
// limited per connection instead.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 10,
	Burst:             20,
	CleanupInterval:   5 * time.Minute,
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	limiters sync.Map // map[string]*ipLimiterEntry
	cfg      RateLimitConfig
	stop     chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPRateLimiter creates a limiter and starts its cleanup goroutine.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		cfg:  cfg,
		stop: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *IPRateLimiter) limiterFor(ip string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*ipLimiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	e := &ipLimiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
	e.lastSeen.Store(now)
	actual, _ := rl.limiters.LoadOrStore(ip, e)
	return actual.(*ipLimiterEntry).limiter
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

func (rl *IPRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * rl.cfg.CleanupInterval).UnixNano()
	rl.limiters.Range(func(key, value any) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow reports whether a request from ip fits in its bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.limiterFor(ip).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Middleware rejects over-limit requests with 429.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected(RejectRateLimit)
			w.Header().Set("Retry-After", "1")
			writeError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats returns allowed/rejected totals.
func (rl *IPRateLimiter) Stats() map[string]uint64 {
	return map[string]uint64{
		"allowed":  rl.allowed.Load(),
		"rejected": rl.rejected.Load(),
	}
}

// GetClientIP extracts the client IP from an HTTP request. When chi's RealIP
// middleware runs first, RemoteAddr already carries the forwarded address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first hop is the client; spoofable without a trusted proxy
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// =============================================================================
// WEBSOCKET CONNECTION LIMITS
// =============================================================================

// ConnLimiter caps concurrent WebSocket connections in total and per IP.
type ConnLimiter struct {
	perIP    sync.Map // map[string]*atomic.Int32
	total    atomic.Int32
	maxTotal int32
	maxPerIP int32
}

// NewConnLimiter creates a limiter. Non-positive limits disable that cap.
func NewConnLimiter(maxTotal, maxPerIP int) *ConnLimiter {
	return &ConnLimiter{maxTotal: int32(maxTotal), maxPerIP: int32(maxPerIP)}
}

// Acquire reserves a slot for ip. It returns "" on success or the rejection
// reason label.
func (cl *ConnLimiter) Acquire(ip string) string {
	if n := cl.total.Add(1); cl.maxTotal > 0 && n > cl.maxTotal {
		cl.total.Add(-1)
		return RejectWSTotal
	}

	actual, _ := cl.perIP.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)
	for {
		cur := counter.Load()
		if cl.maxPerIP > 0 && cur >= cl.maxPerIP {
			cl.total.Add(-1)
			return RejectWSIP
		}
		if counter.CompareAndSwap(cur, cur+1) {
			return ""
		}
	}
}

// Release returns the slot reserved by Acquire.
func (cl *ConnLimiter) Release(ip string) {
	cl.total.Add(-1)
	if v, ok := cl.perIP.Load(ip); ok {
		v.(*atomic.Int32).Add(-1)
	}
}

// Active returns the number of reserved slots.
func (cl *ConnLimiter) Active() int { return int(cl.total.Load()) }

// ActiveFor returns the number of slots held by ip.
func (cl *ConnLimiter) ActiveFor(ip string) int {
	if v, ok := cl.perIP.Load(ip); ok {
		return int(v.(*atomic.Int32).Load())
	}
	return 0
}

// =============================================================================
// ORIGINS
// =============================================================================

// OriginChecker matches request origins against an allow list. A "*" entry
// allows every origin.
type OriginChecker struct {
	allowed map[string]struct{}
	all     bool
}

// NewOriginChecker builds a checker for the configured origins.
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			oc.all = true
			continue
		}
		oc.allowed[strings.ToLower(o)] = struct{}{}
	}
	return oc
}

// Allowed reports whether origin may connect. Requests without an Origin
// header come from non-browser clients and are allowed.
func (oc *OriginChecker) Allowed(origin string) bool {
	if origin == "" || oc.all {
		return true
	}
	_, ok := oc.allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
	return ok
}

// CheckRequest adapts Allowed to websocket.Upgrader.CheckOrigin.
func (oc *OriginChecker) CheckRequest(r *http.Request) bool {
	return oc.Allowed(r.Header.Get("Origin"))
}

// List returns the configured origins for the CORS middleware.
func (oc *OriginChecker) List() []string {
	if oc.all {
		return []string{"*"}
	}
	out := make([]string, 0, len(oc.allowed))
	for o := range oc.allowed {
		out = append(out, o)
	}
	return out
}
