package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/penmaen-hall/server/internal/api/problem"
	"github.com/penmaen-hall/server/internal/config"
	"golang.org/x/time/rate"
)

const limiterTTL = 30 * time.Minute

// LoginRateLimit allows cfg.LoginAttempts sign-in posts per client address
// in a burst, refilling one attempt every LoginWindow/LoginAttempts. Only
// POST is counted so the login page itself can always be shown.
func LoginRateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.LoginAttempts <= 0 || cfg.LoginWindow <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	store := newLimiterStore(rate.Every(cfg.LoginWindow/time.Duration(cfg.LoginAttempts)), cfg.LoginAttempts)
	retryAfter := strconv.Itoa(int((cfg.LoginWindow / time.Duration(cfg.LoginAttempts)).Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			if !store.limiter(clientKey(r, cfg.TrustedProxyCIDRs)).Allow() {
				w.Header().Set("Retry-After", retryAfter)
				problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited,
					"Too many sign-in attempts", nil, "", problem.WithDetail("try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limiterStore struct {
	every rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(every rate.Limit, burst int) *limiterStore {
	return &limiterStore{
		every:     every,
		burst:     burst,
		now:       time.Now,
		limiters:  make(map[string]*limiterEntry),
		lastSweep: time.Now(),
	}
}

func (s *limiterStore) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > limiterTTL/2 {
		s.sweep(now)
	}
	if entry, ok := s.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(s.every, s.burst)
	s.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// sweep drops idle limiters; the caller holds mu.
func (s *limiterStore) sweep(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
	s.lastSweep = now
}

// clientKey identifies the caller. Forwarding headers are believed only
// when the direct peer is a trusted proxy.
func clientKey(r *http.Request, trustedProxyCIDRs []string) string {
	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trustedProxyCIDRs) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedCIDRs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}
