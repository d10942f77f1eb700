package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// RATE LIMITING - Token bucket per client IP
// =============================================================================

// rateLimiterIdleTTL is how long a client's bucket survives without
// requests. An idle bucket has refilled, so dropping it changes nothing.
const rateLimiterIdleTTL = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type IPRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	r         rate.Limit
	b         int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters:  make(map[string]*ipLimiter),
		r:         r,
		b:         b,
		idleTTL:   rateLimiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Limiter returns the bucket for key, creating it on first use. Buckets idle
// longer than idleTTL are evicted, at most once per idleTTL.
func (l *IPRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Len reports how many client buckets are held.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *IPRateLimiter) sweep(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// RateLimitByIP rejects requests over the limit with 429. Mount after
// middleware.RealIP so RemoteAddr is the client address.
func RateLimitByIP(l *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Limiter(clientIP(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "too many requests", "RATE_LIMITED", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// =============================================================================
// IDEMPOTENCY - Replay POST responses by Idempotency-Key
// =============================================================================

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"

	// idempotencyLockTTL bounds how long a crashed request can hold a key.
	idempotencyLockTTL = 30 * time.Second
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        string `json:"body"`
}

func idempotencyKeys(r *http.Request, key string) (cacheKey, lockKey string) {
	cacheKey = fmt.Sprintf("idemp:%s:%s", r.URL.Path, key)
	return cacheKey, cacheKey + ":lock"
}

// Idempotency caches the first response to a POST carrying an
// Idempotency-Key header and replays it for repeats within ttl. A repeat
// that arrives while the first is still running gets 409. 5xx responses are
// not cached. If Redis is unreachable the request is served without replay.
func Idempotency(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api.idempotency")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			cacheKey, lockKey := idempotencyKeys(r, key)

			val, err := rdb.Get(ctx, cacheKey).Result()
			switch {
			case err == nil:
				var cached cachedResponse
				if err := json.Unmarshal([]byte(val), &cached); err == nil {
					replay(w, cached)
					return
				}
				logger.Warn("discarding unreadable cached response", zap.String("key", cacheKey))
			case !errors.Is(err, redis.Nil):
				logger.Warn("idempotency store unavailable, serving without replay", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "locked", idempotencyLockTTL).Result()
			if err != nil {
				logger.Warn("idempotency lock failed, serving without replay", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				writeError(w, http.StatusConflict, "a request with this Idempotency-Key is still being processed", "PROCESSING", nil)
				return
			}

			// Bookkeeping must finish even if the client went away.
			bg := context.WithoutCancel(ctx)
			defer rdb.Del(bg, lockKey)

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				return
			}
			payload, err := json.Marshal(cachedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        body.String(),
			})
			if err != nil {
				return
			}
			if err := rdb.Set(bg, cacheKey, string(payload), ttl).Err(); err != nil {
				logger.Warn("caching response failed", zap.String("key", cacheKey), zap.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, cached cachedResponse) {
	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.Status)
	w.Write([]byte(cached.Body))
}
