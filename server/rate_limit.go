package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	maxTrackedLoginKeys = 10_000
	loginLimiterTTL     = 5 * time.Minute
)

// loginLimiter throttles login attempts per client address and per upstream account, so
// neither dropping the session cookie nor switching address lets a client lock the user's
// upstream account. Idle limiters expire and the number tracked is bounded.
type loginLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
	lock     sync.Mutex
}

func newLoginLimiter(perMinute float64, burst int) *loginLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	if burst < 1 {
		burst = 1
	}
	return &loginLimiter{
		limit:    limit,
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedLoginKeys, nil, loginLimiterTTL),
	}
}

func (l *loginLimiter) limiter(key string) *rate.Limiter {
	l.lock.Lock()
	defer l.lock.Unlock()
	limiter, ok := l.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(key, limiter)
	}
	return limiter
}

// Allow reports whether every key still has an attempt left. A denied attempt does not
// spend the tokens of the remaining keys.
func (l *loginLimiter) Allow(keys ...string) bool {
	for _, key := range keys {
		if !l.limiter(key).Allow() {
			return false
		}
	}
	return true
}

// Len is the number of limiters currently tracked.
func (l *loginLimiter) Len() int {
	return l.limiters.Len()
}

func clientKey(ip string) string {
	return "ip:" + ip
}

func accountKey(platform, environment, login string) string {
	return "account:" + platform + "|" + environment + "|" + strings.ToLower(login)
}

// clientIP resolves the caller's address. Proxy headers are only honoured when the
// service is configured to sit behind a trusted proxy.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
