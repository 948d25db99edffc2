package server

import (
	"container/list"
	"context"
	"crypto/subtle"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/tinkercalc/internal/config"
	"github.com/livetemplate/tinkercalc/internal/observability"
	"golang.org/x/time/rate"
)

const (
	// evictionLogInterval is the minimum time between eviction log messages.
	evictionLogInterval = 30 * time.Second

	limiterSweepInterval = 5 * time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

// CORSMiddleware answers cross-origin requests from the listed origins.
// An empty list disables CORS. authHeaderName is added to the allowed
// request headers when it is not one of the defaults.
func CORSMiddleware(origins []string, authHeaderName string) func(http.Handler) http.Handler {
	allowHeaders := "Content-Type, Authorization, X-API-Key"
	if authHeaderName != "" && authHeaderName != "Authorization" && authHeaderName != "X-API-Key" {
		allowHeaders += ", " + authHeaderName
	}
	wildcard := slices.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || slices.Contains(origins, origin)) {
				allowOrigin := origin
				if wildcard {
					allowOrigin = "*"
				}
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// contentSecurityPolicy keeps the keypad on its own origin. connect-src
// 'self' covers the same-origin WebSocket.
var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self'",
	"style-src 'self'",
	"img-src 'self' data:",
	"connect-src 'self'",
	"frame-ancestors 'none'",
}, "; ")

// SecurityHeadersMiddleware adds security headers to all responses.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			next.ServeHTTP(w, r)
		})
	}
}

// ipLimiter is one client's token bucket.
type ipLimiter struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters holds token buckets for at most max clients, evicting the least
// recently seen one when full.
type ipLimiters struct {
	rps   rate.Limit
	burst int
	max   int

	mu           sync.Mutex
	items        map[string]*list.Element
	order        *list.List // front is most recently seen
	evicted      int
	lastEvictLog time.Time
}

func newIPLimiters(rps float64, burst, maxIPs int) *ipLimiters {
	if maxIPs <= 0 {
		maxIPs = 10000
	}
	return &ipLimiters{
		rps:   rate.Limit(rps),
		burst: burst,
		max:   maxIPs,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// allow reports whether ip may make a request now.
func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if elem, ok := l.items[ip]; ok {
		l.order.MoveToFront(elem)
		entry := elem.Value.(*ipLimiter)
		entry.lastSeen = now
		return entry.limiter.Allow()
	}

	if l.order.Len() >= l.max {
		l.evictOldest(now)
	}
	entry := &ipLimiter{ip: ip, limiter: rate.NewLimiter(l.rps, l.burst), lastSeen: now}
	l.items[ip] = l.order.PushFront(entry)
	return entry.limiter.Allow()
}

// evictOldest drops the least recently seen client. Must hold mu.
func (l *ipLimiters) evictOldest(now time.Time) {
	back := l.order.Back()
	if back == nil {
		return
	}
	l.order.Remove(back)
	delete(l.items, back.Value.(*ipLimiter).ip)

	l.evicted++
	if now.Sub(l.lastEvictLog) >= evictionLogInterval {
		log.Printf("[RateLimit] Evicted %d least-recent IP(s) (at capacity: %d IPs)", l.evicted, l.max)
		l.lastEvictLog = now
		l.evicted = 0
	}
}

// sweep drops clients idle for longer than limiterIdleTimeout.
func (l *ipLimiters) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Recency order follows the last request, so idle entries can sit anywhere.
	for e := l.order.Back(); e != nil; {
		prev := e.Prev()
		if entry := e.Value.(*ipLimiter); now.Sub(entry.lastSeen) > limiterIdleTimeout {
			l.order.Remove(e)
			delete(l.items, entry.ip)
		}
		e = prev
	}
}

// RateLimitMiddleware limits each client IP to rps requests per second with
// the given burst, tracking at most maxIPs clients.
//
// Idle clients are swept by a goroutine that runs until ctx is cancelled;
// the returned channel is closed once it has exited.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int, maxIPs int) (func(http.Handler) http.Handler, <-chan struct{}) {
	limiters := newIPLimiters(rps, burst, maxIPs)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				limiters.sweep(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(getClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				observability.RateLimitRejectedTotal.Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	return middleware, done
}

// getClientIP returns the requesting client's address. Forwarding headers
// are honoured only when the peer is a loopback or private address.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return host
	}

	if peer.IsLoopback() || peer.IsPrivate() {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	return peer.String()
}

// AuthMiddleware requires the configured API key on every non-preflight
// request. With no key configured it passes everything through.
func AuthMiddleware(authCfg *config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		apiKey := authCfg.GetAPIKey()
		if apiKey == "" {
			return next
		}
		headerName := authCfg.GetHeaderName()

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(headerName)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if headerName == "Authorization" {
				bearer, ok := strings.CutPrefix(token, "Bearer ")
				if !ok || bearer == "" {
					writeError(w, http.StatusUnauthorized, "invalid authorization format, expected Bearer token")
					return
				}
				token = bearer
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
