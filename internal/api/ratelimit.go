package api

import (
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT ADDRESS
// =============================================================================

// ClientIPResolver picks the address that per-IP limits are keyed on.
//
// X-Forwarded-For and X-Real-IP are read only when the direct peer is inside
// one of the trusted proxy prefixes. Any other request is keyed on its
// RemoteAddr, whatever headers it carries. A nil resolver trusts nobody.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver returns a resolver trusting the given proxy prefixes.
func NewClientIPResolver(trusted []netip.Prefix) *ClientIPResolver {
	return &ClientIPResolver{trusted: append([]netip.Prefix(nil), trusted...)}
}

// ClientIP returns the client address for r.
func (res *ClientIPResolver) ClientIP(r *http.Request) string {
	peer, ok := parsePeer(r.RemoteAddr)
	if !ok {
		return r.RemoteAddr
	}
	if !res.trusts(peer) {
		return peer.String()
	}

	// Walk the chain from the nearest hop; the first untrusted hop is the client
	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if hop = hop.Unmap(); !res.trusts(hop) {
				return hop.String()
			}
		}
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer.String()
}

func (res *ClientIPResolver) trusts(addr netip.Addr) bool {
	if res == nil {
		return false
	}
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parsePeer accepts "host:port" or a bare address.
func parsePeer(remote string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remote); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

// =============================================================================
// HTTP REQUEST LIMITER
// =============================================================================

// RateLimitConfig configures the per-IP HTTP limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64        // Token refill per client IP
	Burst             int            // Bucket size
	CleanupInterval   time.Duration  // Idle buckets older than two intervals are dropped
	TrustedProxies    []netip.Prefix // Peers whose forwarding headers are believed
}

// DefaultRateLimitConfig allows a page load (index, scripts, sprites) in one burst.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             60,
	CleanupInterval:   5 * time.Minute,
}

// RateLimitStats is a point-in-time view of an IPRateLimiter.
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	Tracked  int    `json:"tracked"` // IPs with a live bucket
}

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter is a token bucket per client IP in front of the router.
type IPRateLimiter struct {
	cfg      RateLimitConfig
	clientIP *ClientIPResolver

	mu       sync.Mutex
	visitors map[string]*visitor

	allowed  atomic.Uint64
	rejected atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewIPRateLimiter starts a limiter and its janitor goroutine.
// Call Stop to release it.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		cfg:      cfg,
		clientIP: NewClientIPResolver(cfg.TrustedProxies),
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Stop ends the janitor goroutine. It is safe to call more than once.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow takes one token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	allowed := v.bucket.AllowN(now, 1)
	rl.mu.Unlock()

	if allowed {
		rl.allowed.Add(1)
	} else {
		rl.rejected.Add(1)
	}
	return allowed
}

// Middleware rejects over-limit requests with 429.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.clientIP.ClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats returns the limiter counters.
func (rl *IPRateLimiter) Stats() RateLimitStats {
	rl.mu.Lock()
	tracked := len(rl.visitors)
	rl.mu.Unlock()
	return RateLimitStats{
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
		Tracked:  tracked,
	}
}

func (rl *IPRateLimiter) janitor() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.forgetIdle(now.Add(-2 * rl.cfg.CleanupInterval))
		}
	}
}

// forgetIdle drops buckets not touched since cutoff.
func (rl *IPRateLimiter) forgetIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// =============================================================================
// WEBSOCKET CONNECTION SLOTS
// =============================================================================

// ConnLimiter caps concurrent websocket connections per client IP.
// An IP's entry exists only while it holds at least one slot.
type ConnLimiter struct {
	maxPerIP int // 0 means unlimited

	mu       sync.Mutex
	open     map[string]int
	rejected atomic.Uint64
}

// NewConnLimiter returns a limiter allowing maxPerIP slots per IP.
func NewConnLimiter(maxPerIP int) *ConnLimiter {
	return &ConnLimiter{maxPerIP: maxPerIP, open: make(map[string]int)}
}

// Acquire reserves a slot for ip. Every true result must be paired with
// a Release.
func (l *ConnLimiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxPerIP > 0 && l.open[ip] >= l.maxPerIP {
		l.rejected.Add(1)
		return false
	}
	l.open[ip]++
	return true
}

// Release frees one of ip's slots.
func (l *ConnLimiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch n := l.open[ip]; {
	case n > 1:
		l.open[ip] = n - 1
	case n == 1:
		delete(l.open, ip)
	}
}

// Open returns the slots ip currently holds.
func (l *ConnLimiter) Open(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[ip]
}

// Tracked returns how many IPs hold at least one slot.
func (l *ConnLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// Rejected returns how many Acquire calls were refused.
func (l *ConnLimiter) Rejected() uint64 {
	return l.rejected.Load()
}

// =============================================================================
// ORIGIN CHECK
// =============================================================================

// IsAllowedOrigin checks origin against patterns. A pattern may contain
// one "*" wildcard ("http://localhost:*", "https://*.example.com", "*").
// Requests without an Origin header (non-browser clients) are allowed.
func IsAllowedOrigin(origin string, patterns []string) bool {
	if origin == "" {
		return true
	}

	for _, p := range patterns {
		prefix, suffix, wild := strings.Cut(p, "*")
		if !wild {
			if origin == p {
				return true
			}
			continue
		}
		if len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
