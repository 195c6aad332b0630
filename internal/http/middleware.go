package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/session"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// RequestIDMiddleware echoes the request id assigned by chi's RequestID
// middleware, or the caller's X-Request-ID, back to the client.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MaxBodySize caps request bodies; handlers see a read error past the limit.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CustomerAuth requires a valid bearer JWT.
func CustomerAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
				return
			}
			id, err := ParseToken(secret, raw)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

type SessionStore interface {
	Create(ctx context.Context, id domain.Identity, ttl time.Duration) (string, error)
	Get(ctx context.Context, token string) (*domain.Identity, error)
	Delete(ctx context.Context, token string) error
}

// RequireCapability resolves the admin session cookie and lets the request
// through only when the session's roles grant c. Missing, unknown and
// under-privileged sessions all get 401 before the handler runs.
func RequireCapability(store SessionStore, cookieName string, c domain.Capability, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "admin session required")
				return
			}

			id, err := store.Get(r.Context(), cookie.Value)
			if errors.Is(err, session.ErrSessionNotFound) {
				respondError(w, http.StatusUnauthorized, "unauthorized", "admin session required")
				return
			}
			if err != nil {
				log.ErrorContext(r.Context(), "session lookup failed", "error", err)
				respondInternal(w)
				return
			}

			if !session.Has(id.Roles, c) {
				log.WarnContext(r.Context(), "admin capability denied", "user_id", id.UserID, "capability", c)
				respondError(w, http.StatusUnauthorized, "unauthorized", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// maxTrackedClients bounds the per-IP limiter table; it is reset when full.
const maxTrackedClients = 10000

type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPRateLimiter(rps, burst int) *ipRateLimiter {
	return &ipRateLimiter{limiters: make(map[string]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[ip] = lim
	}
	return lim
}

// ClientIP replaces r.RemoteAddr with the client address from X-Forwarded-For,
// but only when the socket peer is one of the trusted proxies. The chain is
// read right to left and the first hop outside the trusted set wins, so a
// client cannot choose its own address by prepending entries.
func ClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer, ok := addrOf(r.RemoteAddr)
			if !ok || !isTrusted(peer, trusted) {
				next.ServeHTTP(w, r)
				return
			}

			hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop, ok := addrOf(strings.TrimSpace(hops[i]))
				if !ok {
					break
				}
				if !isTrusted(hop, trusted) {
					r.RemoteAddr = net.JoinHostPort(hop.String(), "0")
					break
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addrOf(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

func isTrusted(a netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// RateLimit throttles per client IP. Use after ClientIP.
func RateLimit(rps, burst int) func(http.Handler) http.Handler {
	l := newIPRateLimiter(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.get(ip).Allow() {
				w.Header().Set("Retry-After", "1")
				respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
