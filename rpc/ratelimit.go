package rpc

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 5 * time.Minute

// RateLimitConfig bounds submissions per client address. A zero
// RequestsPerMinute disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
	// TrustedProxies lists peer IPs or CIDRs whose X-Forwarded-For header
	// names the client. From any other peer the header is ignored.
	TrustedProxies []string
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*rateEntry
	trusted  []*net.IPNet
	now      func() time.Time
}

func newRateLimiter(cfg RateLimitConfig) (*rateLimiter, error) {
	trusted, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	return &rateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*rateEntry),
		trusted:  trusted,
		now:      time.Now,
	}, nil
}

func parseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("rpc: invalid trusted proxy %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("rpc: invalid trusted proxy %q: %w", raw, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

func (r *rateLimiter) isTrusted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range r.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (r *rateLimiter) allow(source string) bool {
	if r == nil || r.cfg.RequestsPerMinute <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(r.visitors, id)
		}
	}
	entry, ok := r.visitors[source]
	if !ok {
		burst := r.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerMinute/60.0), burst)}
		r.visitors[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// clientSource identifies the caller for rate limiting. X-Forwarded-For is
// walked from the right past trusted proxies, and only when the direct peer
// is itself trusted.
func (r *rateLimiter) clientSource(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if r == nil || !r.isTrusted(host) {
		return host
	}
	hops := strings.Split(req.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !r.isTrusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}
